package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medstore/config"
	"medstore/internal/api"
	"medstore/internal/auth"
	"medstore/internal/broker"
	"medstore/internal/cache"
	"medstore/internal/mailer"
	"medstore/internal/models"
	"medstore/internal/payment"
	"medstore/internal/realtime"
	"medstore/internal/redisclient"
	"medstore/internal/service"
	"medstore/internal/store"
	"medstore/internal/upload"
	"medstore/internal/util"
	"medstore/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, "medstore"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting medstore backend")

	// prices go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	tp, err := util.InitTracer("medstore", cfg.Observ.JaegerEndpoint, cfg.Observ.SampleRatio)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		log.Fatalf("Failed to migrate database: %v", err)
	}
	migrateCancel()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	products := cache.NewCachedProductRepository(db, redisClient.GetClient())

	uploads, err := upload.NewStore(cfg.Server.UploadDir, "/uploads")
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.MaxTokenAge)
	authService := service.NewAuthService(db, db, tokens, mailer.New(mailer.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		Timeout:  cfg.Mail.Timeout,
	}), service.AuthOptions{
		VerificationTTL: cfg.Auth.VerificationTTL,
		ResetTTL:        cfg.Auth.ResetTTL,
		ClientURL:       cfg.Server.ClientURL,
	})

	hub := realtime.NewHub(authService.ResolvePrincipal, cfg.Server.CORSOrigins)
	defer hub.Close()

	// with Kafka every instance publishes to the topic and relays what it
	// consumes to its own websocket clients
	var notifier broker.Notifier = hub
	var notificationWorker *worker.NotificationWorker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer producer.Close()
		notifier = broker.NewEventPublisher(producer)

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, hub)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
		logger.Info("Kafka notification bus enabled", zap.String("group", cfg.Kafka.ConsumerGroup))
	}

	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	if !gateway.Enabled() {
		logger.Warn("Stripe secret key not set, card payments are disabled")
	}

	catalogService := service.NewCatalogService(db, products, notifier)
	orderService := service.NewOrderService(db, products, notifier, service.OrderOptions{
		NumberPrefix:      cfg.Business.OrderPrefix,
		LowStockThreshold: cfg.Business.LowStockThreshold,
	})
	paymentService := service.NewPaymentService(db, products, notifier, service.PaymentOptions{
		Bank: models.BankDetails{
			BankName:      cfg.Bank.BankName,
			AccountTitle:  cfg.Bank.AccountTitle,
			AccountNumber: cfg.Bank.AccountNumber,
			IBAN:          cfg.Bank.IBAN,
			BranchCode:    cfg.Bank.BranchCode,
			SwiftCode:     cfg.Bank.SwiftCode,
		},
		WhatsAppNumber: cfg.Business.WhatsAppNumber,
	})
	cardService := service.NewCardPaymentService(db, db, gateway, products, notifier, service.CardPaymentOptions{
		PublishableKey: cfg.Stripe.PublishableKey,
		Currency:       cfg.Stripe.Currency,
	})

	if cfg.Bootstrap.AdminEmail != "" {
		created, err := authService.EnsureAdmin(context.Background(), cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
		if err != nil {
			log.Fatalf("Failed to bootstrap admin: %v", err)
		}
		if created {
			logger.Info("Bootstrap admin created", zap.String("email", cfg.Bootstrap.AdminEmail))
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := api.NewHandler(api.Dependencies{
		Auth:       authService,
		Catalog:    catalogService,
		Orders:     orderService,
		Payments:   paymentService,
		Cards:      cardService,
		Reviews:    service.NewReviewService(db, products),
		Wishlist:   service.NewWishlistService(db, products),
		Complaints: service.NewComplaintService(db),
		Uploads:    uploads,
		Realtime:   hub,
		Limiter:    redisClient,
		Checks: map[string]func(context.Context) error{
			"database": db.Ping,
			"redis":    redisClient.Ping,
		},
		Limits:     cfg.Limits,
		Production: cfg.IsProduction(),
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if notificationWorker != nil {
		if err := notificationWorker.Stop(shutdownCtx); err != nil {
			logger.Warn("Notification worker did not stop cleanly", zap.Error(err))
		}
	}
	workerCancel()

	logger.Info("Server exited")
}
