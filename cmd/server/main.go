package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"taletoprint-backend/internal/config"
	"taletoprint-backend/internal/database"
	"taletoprint-backend/internal/events"
	"taletoprint-backend/internal/fulfillment"
	"taletoprint-backend/internal/handlers"
	"taletoprint-backend/internal/middleware"
	"taletoprint-backend/internal/printfile"
	"taletoprint-backend/internal/prodigi"
	"taletoprint-backend/internal/replicate"
	"taletoprint-backend/internal/storage"
	"taletoprint-backend/internal/store"
	"taletoprint-backend/internal/stripe"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	// Run migrations
	migrator, err := database.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := migrator.Run(); err != nil {
		migrator.Close()
		log.Fatalf("Migration failed: %v", err)
	}
	migrator.Close()

	// Order record store
	orders, err := store.NewClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize order store: %v", err)
	}
	defer orders.Close()

	// External collaborators, all explicitly constructed and injected
	stripeClient := stripe.NewClient(cfg.StripeSecretKey)
	generator := replicate.NewClient(cfg.ReplicateAPIBaseURL, cfg.ReplicateAPIToken, cfg.GenerateTimeout)
	composer := printfile.NewComposer()
	partner := prodigi.NewClient(cfg.ProdigiAPIBaseURL, cfg.ProdigiAPIKey)

	assets, err := storage.NewAssetStore(cfg.SupabaseURL, cfg.SupabaseServiceKey,
		cfg.SupabaseStorageBucket, int(cfg.SignedURLTTL.Seconds()))
	if err != nil {
		log.Fatalf("Failed to initialize asset store: %v", err)
	}

	publisher, err := events.NewPublisher(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}

	// Fulfillment orchestrator
	service := fulfillment.NewService(cfg, orders, generator, composer, assets, partner, stripeClient, publisher)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(cfg, service)
	ordersHandler := handlers.NewOrdersHandler(orders, service)

	// Setup router
	router := gin.Default()
	router.Use(gin.Recovery())

	// Health check (no auth)
	router.GET("/health", handlers.HealthHandler)

	// Stripe webhook (no auth, signature-verified)
	router.POST("/api/v1/webhooks/stripe", webhookHandler.HandleStripeWebhook)

	// Operator console
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	api.GET("/orders", ordersHandler.ListOrders)
	api.GET("/orders/:order_id", ordersHandler.GetOrder)
	api.POST("/orders/:order_id/retry", ordersHandler.Retry)
	api.POST("/orders/:order_id/regenerate", ordersHandler.Regenerate)
	api.POST("/orders/:order_id/approve", ordersHandler.Approve)
	api.POST("/orders/:order_id/refund", ordersHandler.Refund)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
