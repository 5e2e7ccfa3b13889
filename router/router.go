package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/storefront-checkout/controllers"
	"github.com/yeremiapane/storefront-checkout/metrics"
	"github.com/yeremiapane/storefront-checkout/middlewares"
	"github.com/yeremiapane/storefront-checkout/services"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Checkout    *services.CheckoutService
	Webhooks    *services.WebhookService
	Orders      *services.OrderService
	Metrics     *metrics.Metrics
	RateLimiter *middlewares.RateLimiter
	JWTSecret   []byte
	Health      Pinger
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Apply security middlewares
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.MetricsMiddleware(deps.Metrics))

	checkoutCtrl := controllers.NewCheckoutController(deps.Checkout)
	webhookCtrl := controllers.NewWebhookController(deps.Webhooks)
	orderCtrl := controllers.NewOrderController(deps.Orders)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/healthz", func(c *gin.Context) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
	})

	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	// Checkout endpoints called by the storefront
	checkout := r.Group("/")
	checkout.Use(middlewares.NoStore())
	if deps.RateLimiter != nil {
		checkout.Use(deps.RateLimiter.RateLimit())
	}
	{
		checkout.POST("/create-order", checkoutCtrl.CreateOrder)
		checkout.POST("/verify-payment", checkoutCtrl.VerifyPayment)
		checkout.POST("/cod-order", checkoutCtrl.PlaceCODOrder)
	}

	// Gateway callbacks, authenticated by signature
	r.POST("/webhooks/razorpay", webhookCtrl.HandleRazorpayWebhook)

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	auth := r.Group("/orders")
	auth.Use(middlewares.AuthMiddleware(deps.JWTSecret), middlewares.NoStore())
	{
		auth.GET("", orderCtrl.ListMyOrders)
		auth.GET("/:order_number", orderCtrl.GetOrder)
	}

	return r
}
