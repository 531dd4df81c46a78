package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"

	"chamapay/config"
	"chamapay/internal/handlers"
	"chamapay/internal/services"
	"chamapay/internal/services/mpesa"
	"chamapay/internal/store"
	_ "chamapay/migrations"
	"chamapay/monitoring"
	"chamapay/security"
	"chamapay/utils"
)

func Start() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	// Create context for background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the Daraja client
	mpesaClient := mpesa.New(&mpesa.Config{
		Env:            cfg.MpesaEnv,
		ShortCode:      cfg.MpesaShortCode,
		PassKey:        cfg.MpesaPassKey,
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		CallbackURL:    cfg.MpesaCallbackURL,
	})

	// Initialize services
	recordStore := store.New(app)
	tokenCache := services.NewTokenCache(recordStore, mpesaClient)
	publisher := services.NewPubNubPublisher(pn)
	paymentService := services.NewPaymentService(recordStore, mpesaClient, tokenCache, publisher, cfg.StatusFreshnessWindow)
	limiter := security.NewRateLimiter(redisClient, cfg.StatusRateLimit, time.Minute)
	sweeper := services.NewSweeper(recordStore, cfg.PendingRetention, cfg.SweepInterval)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService, limiter, cfg.PollInterval, cfg.PollMaxAttempts)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Metrics
	if cfg.EnableMetrics {
		monitor := monitoring.NewMonitor(redisClient)
		go monitor.Serve(ctx, cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Stale pending sweep runs against the bootstrapped database
		go sweeper.Run(ctx)

		// Payment endpoints
		e.Router.POST("/api/mpesa/stkpush", paymentHandler.STKPush)
		e.Router.POST("/api/mpesa/checkout", paymentHandler.Checkout)
		e.Router.POST("/api/mpesa/callback", paymentHandler.Callback)
		e.Router.GET("/api/mpesa/status/{checkoutRequestId}", paymentHandler.Status)

		// Test endpoint for callback simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/test/simulate-callback", paymentHandler.SimulateCallback)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		return err
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
