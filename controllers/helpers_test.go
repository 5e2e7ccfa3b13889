package controllers_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/storefront-checkout/config"
	"github.com/yeremiapane/storefront-checkout/controllers"
	"github.com/yeremiapane/storefront-checkout/metrics"
	"github.com/yeremiapane/storefront-checkout/middlewares"
	"github.com/yeremiapane/storefront-checkout/services"
	"github.com/yeremiapane/storefront-checkout/utils"
)

const (
	testKeyID         = "rzp_test_xxx"
	testKeySecret     = "s3cr3t"
	testWebhookSecret = "whsec"
)

var testJWTSecret = []byte("test-jwt-secret")

func init() {
	gin.SetMode(gin.TestMode)
	utils.InitLoggerWithOutput("error", "text", io.Discard, io.Discard)
}

type testEnv struct {
	router  *gin.Engine
	db      *gorm.DB
	gateway *httptest.Server
	hits    atomic.Int64
}

type envOptions struct {
	keySecret     string
	gatewayStatus int
	gatewayBody   string
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, config.AutoMigrate(db))
	return db
}

func setupTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	env := &testEnv{db: setupTestDB(t)}

	env.gateway = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.hits.Add(1)
		if opts.gatewayStatus != 0 {
			w.WriteHeader(opts.gatewayStatus)
			w.Write([]byte(opts.gatewayBody))
			return
		}
		var req services.RazorpayOrderRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(services.RazorpayOrder{
			ID:       "order_abc",
			Entity:   "order",
			Amount:   req.Amount,
			Currency: req.Currency,
			Receipt:  req.Receipt,
			Status:   "created",
		})
	}))
	t.Cleanup(env.gateway.Close)

	secret := testKeySecret
	if opts.keySecret != "" {
		secret = opts.keySecret
	}
	if opts.keySecret == "-" {
		secret = ""
	}

	rzp := services.NewRazorpayService(config.RazorpayConfig{
		KeyID:         testKeyID,
		KeySecret:     secret,
		WebhookSecret: testWebhookSecret,
		BaseURL:       env.gateway.URL,
		Timeout:       2 * time.Second,
	})
	m := metrics.New(prometheus.NewRegistry())
	orders := services.NewOrderService(env.db, nil)
	events := services.NewPaymentEventService(env.db)
	checkout := services.NewCheckoutService(services.CheckoutConfig{
		KeyID:           testKeyID,
		KeySecret:       secret,
		DefaultCurrency: "INR",
		PersistAttempts: 2,
		PersistBackoff:  time.Millisecond,
	}, rzp, orders, m)

	checkoutCtrl := controllers.NewCheckoutController(checkout)
	webhookCtrl := controllers.NewWebhookController(services.NewWebhookService(rzp, events, orders, m))
	orderCtrl := controllers.NewOrderController(orders)

	r := gin.New()
	r.POST("/create-order", checkoutCtrl.CreateOrder)
	r.POST("/verify-payment", checkoutCtrl.VerifyPayment)
	r.POST("/cod-order", checkoutCtrl.PlaceCODOrder)
	r.POST("/webhooks/razorpay", webhookCtrl.HandleRazorpayWebhook)
	auth := r.Group("/orders", middlewares.AuthMiddleware(testJWTSecret))
	auth.GET("", orderCtrl.ListMyOrders)
	auth.GET("/:order_number", orderCtrl.GetOrder)
	env.router = r

	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func orderDetailsPayload(userID string) map[string]interface{} {
	details := map[string]interface{}{
		"customer_name":  "Asha Rao",
		"customer_email": "asha@example.com",
		"customer_phone": "+919800000000",
		"shipping_address": map[string]interface{}{
			"address_line1": "12 MG Road",
			"city":          "Bengaluru",
			"postal_code":   "560001",
		},
		"items": []map[string]interface{}{
			{"id": 101, "name": "Notebook", "price": 250, "quantity": 2},
			{"id": "102", "name": "Pen", "price": "500.00", "quantity": 1},
		},
		"subtotal":        1000,
		"gst_amount":      180,
		"shipping_amount": 0,
		"discount_amount": 0,
		"total_amount":    1180,
		"delivery_type":   "standard",
		"payment_method":  "upi",
	}
	if userID != "" {
		details["user_id"] = userID
	}
	return details
}

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := utils.GenerateToken(testJWTSecret, userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}
