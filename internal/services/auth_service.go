package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"qa-escrow/internal/auth"
	"qa-escrow/internal/blockchain"
)

// ErrLoginRejected is returned when a wallet login cannot be verified.
var ErrLoginRejected = errors.New("wallet login rejected")

// AuthService handles wallet authentication
type AuthService struct {
	custodian blockchain.Custodian
	ledger    *LedgerService
	nonces    *auth.NonceStore
}

// NewAuthService creates a new AuthService
func NewAuthService(custodian blockchain.Custodian, ledger *LedgerService, nonces *auth.NonceStore) *AuthService {
	return &AuthService{
		custodian: custodian,
		ledger:    ledger,
		nonces:    nonces,
	}
}

// LoginChallenge is what a wallet signs to log in.
type LoginChallenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueLoginChallenge hands out a single-use nonce for walletAddress.
func (s *AuthService) IssueLoginChallenge(walletAddress string) (*LoginChallenge, error) {
	if !s.custodian.ValidateAddress(walletAddress) {
		return nil, fmt.Errorf("%w: invalid wallet address", ErrLoginRejected)
	}
	nonce, expires := s.nonces.Issue(walletAddress, time.Now())
	return &LoginChallenge{
		Nonce:     nonce,
		Message:   auth.LoginMessageFor(nonce),
		ExpiresAt: expires,
	}, nil
}

// Session describes an authenticated wallet.
type Session struct {
	WalletAddress string `json:"wallet_address"`
	IsOwner       bool   `json:"is_owner"`
}

// ProcessWalletLogin verifies a signed login challenge and issues a token
// carrying the wallet address. The nonce is spent even when the signature
// does not verify.
func (s *AuthService) ProcessWalletLogin(walletAddress, nonce, signature string) (string, error) {
	if !s.custodian.ValidateAddress(walletAddress) {
		return "", fmt.Errorf("%w: invalid wallet address", ErrLoginRejected)
	}
	if !s.nonces.Consume(walletAddress, nonce, time.Now()) {
		return "", fmt.Errorf("%w: unknown or expired nonce", ErrLoginRejected)
	}
	if err := auth.VerifyWalletSignature(walletAddress, auth.LoginMessageFor(nonce), signature); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoginRejected, err)
	}

	token, err := auth.GenerateToken(walletAddress)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	log.Printf("[Auth] Wallet logged in: %s", walletAddress)
	return token, nil
}

// GetSession describes the authenticated wallet, including whether it
// currently holds the owner role.
func (s *AuthService) GetSession(ctx context.Context, walletAddress string) (*Session, error) {
	owner, err := s.ledger.GetOwner(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{
		WalletAddress: walletAddress,
		IsOwner:       owner == walletAddress,
	}, nil
}
