package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qa-escrow/internal/auth"
	"qa-escrow/internal/blockchain"
	"qa-escrow/internal/config"
	"qa-escrow/internal/database"
	"qa-escrow/internal/handlers"
	"qa-escrow/internal/jobs"
	"qa-escrow/internal/metrics"
	"qa-escrow/internal/ratelimit"
	"qa-escrow/internal/repository"
	"qa-escrow/internal/services"
)

// recentEvents is how many ledger events are kept in memory.
const recentEvents = 1024

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	minDeposit, err := cfg.MinDepositLamports()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	// Initialize custodian
	var custodian blockchain.Custodian
	switch cfg.Solana.CustodyMode {
	case config.CustodyModeSolana:
		solanaClient := blockchain.NewSolanaClient(cfg.Solana.Network, cfg.Solana.RPCURL, cfg.Solana.EscrowPrivateKey)
		if _, err := solanaClient.EscrowPublicKey(); err != nil {
			log.Fatalf("Failed to load escrow wallet: %v", err)
		}
		custodian = blockchain.NewSolanaCustodian(solanaClient)
		log.Printf("Custody: solana (%s)", cfg.Solana.Network)
	default:
		custodian = blockchain.NewMemoryCustodian()
		log.Println("Custody: in-memory, balances are lost on restart")
	}

	// Initialize ledger
	repo := repository.NewRepository(database.GetDB())
	ledger := services.NewLedgerService(
		repo,
		custodian,
		services.NewSystemClock(),
		services.MultiEventSink{services.LogEventSink{}, services.NewMemoryEventSink(recentEvents)},
		ledgerMetrics,
		services.LedgerOptions{MinDeposit: minDeposit},
	)
	if err := ledger.Initialize(context.Background(), cfg.Ledger.OwnerAddress); err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}

	authService := services.NewAuthService(custodian, ledger, auth.NewNonceStore(cfg.App.LoginNonceTTL))

	// Start overdue question monitor
	overdueMonitor := jobs.NewOverdueMonitor(ledger, ledgerMetrics, cfg.Ledger.OverdueScanInterval)
	go overdueMonitor.Start()
	defer overdueMonitor.Stop()

	// Set up Gin router
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	(&handlers.Router{
		Auth:      handlers.NewAuthHandler(authService),
		Questions: handlers.NewQuestionHandler(ledger),
		Ledger:    handlers.NewLedgerHandler(ledger, custodian),
		Limiter:   ratelimit.New(cfg.App.RateLimitRPS, cfg.App.RateLimitBurst, 10*time.Minute, ledgerMetrics),
	}).Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)
		log.Printf("Wallet auth: GET http://localhost:%s/auth/nonce, then POST /auth/wallet", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Custody transfers may be waiting on confirmation; give them time.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
