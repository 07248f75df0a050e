package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"qa-escrow/internal/auth"
	"qa-escrow/internal/services"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// GetNonce issues a login challenge for a wallet
// GET /auth/nonce?wallet_address=...
func (h *AuthHandler) GetNonce(c *gin.Context) {
	challenge, err := h.authService.IssueLoginChallenge(c.Query("wallet_address"))
	if errors.Is(err, services.ErrLoginRejected) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

// WalletLogin authenticates a caller by their Solana wallet address and a
// signature of the challenge issued by GetNonce.
// POST /auth/wallet
func (h *AuthHandler) WalletLogin(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
		Nonce         string `json:"nonce" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.ProcessWalletLogin(req.WalletAddress, req.Nonce, req.Signature)
	if errors.Is(err, services.ErrLoginRejected) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"wallet_address": req.WalletAddress,
	})
}

// Logout handles logout (stateless JWT, client-side only)
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully logged out",
	})
}

// GetMe returns the authenticated wallet
// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	wallet, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	session, err := h.authService.GetSession(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
