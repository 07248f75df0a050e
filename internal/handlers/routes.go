package handlers

import (
	"github.com/gin-gonic/gin"

	"qa-escrow/internal/auth"
	"qa-escrow/internal/ratelimit"
)

// Router groups the handlers served under /auth and /api.
type Router struct {
	Auth      *AuthHandler
	Questions *QuestionHandler
	Ledger    *LedgerHandler
	Limiter   *ratelimit.Limiter
}

// Register mounts every route. Mutating routes require a token and are rate
// limited per wallet; login routes are limited per client IP.
func (r *Router) Register(engine *gin.Engine) {
	limited := ratelimit.Middleware(r.Limiter, rateLimitSubject)

	// Authentication routes (public)
	authRoutes := engine.Group("/auth")
	{
		authRoutes.GET("/nonce", limited, r.Auth.GetNonce)
		authRoutes.POST("/wallet", limited, r.Auth.WalletLogin)
		authRoutes.POST("/logout", r.Auth.Logout)
		authRoutes.GET("/me", auth.AuthMiddleware(), r.Auth.GetMe)
	}

	api := engine.Group("/api")

	// Public read routes
	{
		api.GET("/questions", r.Questions.ListQuestions)
		api.GET("/questions/open", r.Questions.GetOpenQuestions)
		api.GET("/questions/overdue", r.Questions.GetOverdueQuestions)
		api.GET("/questions/:id", r.Questions.GetQuestion)
		api.GET("/questions/:id/answers", r.Questions.GetAnswers)
		api.GET("/users/:address/questions", r.Questions.GetUserQuestions)

		api.GET("/ledger/owner", r.Ledger.GetOwner)
		api.GET("/ledger/paused", r.Ledger.GetPaused)
		api.GET("/ledger/stats", r.Ledger.GetStats)
		api.GET("/ledger/totals", r.Ledger.GetTotals)
		api.GET("/ledger/custody", r.Ledger.GetCustody)
		api.GET("/ledger/payouts/unsettled", r.Ledger.GetUnsettledPayouts)
	}

	// Authenticated routes
	protected := api.Group("")
	protected.Use(auth.AuthMiddleware(), limited)
	{
		protected.POST("/questions", r.Questions.PostQuestion)
		protected.POST("/questions/:id/answers", r.Questions.SubmitAnswer)
		protected.POST("/questions/:id/approve", r.Questions.ApproveAnswer)
		protected.POST("/questions/:id/refund", r.Questions.RefundQuestion)

		protected.POST("/ledger/pause", r.Ledger.Pause)
		protected.POST("/ledger/unpause", r.Ledger.Unpause)
		protected.POST("/ledger/ownership", r.Ledger.TransferOwnership)
	}
}

func rateLimitSubject(c *gin.Context) ratelimit.Subject {
	if wallet, ok := auth.GetWalletAddress(c); ok {
		return ratelimit.Wallet(wallet)
	}
	return ratelimit.IP(c.ClientIP())
}
