package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ticket-marketplace/config"
	"ticket-marketplace/internal/handlers"
	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/security"
	"ticket-marketplace/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	_ "ticket-marketplace/migrations"
)

const checkoutRateLimit = 20 // requests per minute per IP

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub notifier. Missing keys disable notifications rather
	// than failing startup; reconciliation does not depend on them.
	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig))
	} else {
		slog.Warn("pubnub keys not configured, notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize stores and services
	st := store.New(app)
	locker := services.NewRedisLocker(redisClient, cfg.RegistrationLeaseTTL)
	ledgerService := services.NewLedgerService(st.Ledger)
	inventoryService := services.NewInventoryService(st.Tickets)
	installmentService := services.NewInstallmentService(st, locker, ledgerService, inventoryService, notifier)
	paymentService := services.NewPaymentService(st, locker, ledgerService, inventoryService, notifier)
	accountService := services.NewAccountService(st, ledgerService)
	webhookService := services.NewWebhookService(cfg.StripeWebhookSecret, paymentService, installmentService, accountService)
	gateway := services.NewStripeGateway(cfg.StripeSecretKey)
	checkoutService := services.NewCheckoutService(st, gateway, cfg.Currency)
	overdueService := services.NewOverdueService(st)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(webhookService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, st)
	adminHandler := handlers.NewAdminHandler(overdueService, cfg.AdminTriggerTokenHash)
	rateLimiter := security.NewRateLimiter(redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Flip past-due installments on a schedule
	app.Cron().MustAdd("overdueSweep", cfg.OverdueSweepCron, func() {
		if _, err := overdueService.Sweep(ctx); err != nil {
			slog.Error("scheduled overdue sweep failed", "error", err)
		}
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Payment provider callback
		e.Router.POST("/api/v1/stripe/webhook", webhookHandler.HandleStripeWebhook)

		// Checkout endpoints
		e.Router.POST("/api/v1/checkout", checkoutHandler.CreateCheckout).
			BindFunc(rateLimiter.CheckoutGuard(checkoutRateLimit))
		e.Router.POST("/api/v1/checkout/installments", checkoutHandler.CreateInstallmentCheckout).
			BindFunc(rateLimiter.CheckoutGuard(checkoutRateLimit))
		e.Router.POST("/api/v1/installments/{installmentId}/generate-pix", checkoutHandler.GeneratePixForInstallment).
			BindFunc(rateLimiter.CheckoutGuard(checkoutRateLimit))
		e.Router.GET("/api/v1/registrations/{registrationId}/payments", checkoutHandler.GetRegistrationPayments)

		// Admin endpoints
		e.Router.POST("/api/v1/admin/sweep-overdue", adminHandler.TriggerOverdueSweep)

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

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
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
