package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/yeremiapane/storefront-checkout/config"
	"github.com/yeremiapane/storefront-checkout/metrics"
	"github.com/yeremiapane/storefront-checkout/middlewares"
	"github.com/yeremiapane/storefront-checkout/router"
	"github.com/yeremiapane/storefront-checkout/services"
	"github.com/yeremiapane/storefront-checkout/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}

	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)
	for _, name := range cfg.MissingSecrets() {
		utils.ErrorLogger.Warnf("Environment variable %s is not set", name)
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize DB
	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := config.AutoMigrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cache := services.NewNoopOrderCache()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		cache = services.NewRedisOrderCache(rdb, cfg.OrderCacheTTL)
		utils.InfoLogger.WithField("addr", cfg.RedisAddr).Info("order history cache enabled")
	}

	razorpay := services.NewRazorpayService(cfg.Razorpay)
	orderService := services.NewOrderService(db, cache)
	eventService := services.NewPaymentEventService(db)

	checkout := services.NewCheckoutService(services.CheckoutConfig{
		KeyID:           cfg.Razorpay.KeyID,
		KeySecret:       cfg.Razorpay.KeySecret,
		DefaultCurrency: cfg.DefaultCurrency,
		MaxOrderAmount:  cfg.MaxOrderAmount,
		PersistAttempts: cfg.PersistAttempts,
		PersistBackoff:  cfg.PersistBackoff,
		PersistTimeout:  cfg.PersistTimeout,
	}, razorpay, orderService, m)
	webhooks := services.NewWebhookService(razorpay, eventService, orderService, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reconciliation runs in the background until shutdown
	worker := services.NewReconciliationWorker(
		eventService, orderService, razorpay, m,
		cfg.ReconcileInterval, cfg.ReconcileGrace, cfg.ReconcileBatch,
	)
	go worker.Run(ctx)

	r := router.SetupRouter(router.Deps{
		Checkout:    checkout,
		Webhooks:    webhooks,
		Orders:      orderService,
		Metrics:     m,
		RateLimiter: middlewares.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		JWTSecret:   []byte(cfg.JWTSecret),
		Health:      orderService,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	<-ctx.Done()
	utils.InfoLogger.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.Errorf("Server forced to shutdown: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	utils.InfoLogger.Println("Server exiting")
}
