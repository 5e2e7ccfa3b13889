package services

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/storefront-checkout/metrics"
	"github.com/yeremiapane/storefront-checkout/models"
	"github.com/yeremiapane/storefront-checkout/utils"
)

func init() {
	utils.InitLoggerWithOutput("error", "text", io.Discard, io.Discard)
}

// setupTestDB opens a private in-memory database. A single connection keeps
// every query on the same memory database.
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

	require.NoError(t, db.AutoMigrate(&models.PurchaseOrder{}, &models.PaymentEvent{}))
	return db
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func countOrders(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.PurchaseOrder{}).Count(&n).Error)
	return n
}

func sampleDetails() OrderDetails {
	userID := "user-1"
	return OrderDetails{
		UserID:        &userID,
		CustomerName:  "Asha Rao",
		CustomerEmail: "asha@example.com",
		CustomerPhone: "+919800000000",
		ShippingAddress: models.Address{
			Line1:      "12 MG Road",
			City:       "Bengaluru",
			State:      "KA",
			PostalCode: "560001",
			Country:    "IN",
		},
		Items: []models.LineItem{
			{ProductID: "101", Name: "Notebook", UnitPrice: decimal.RequireFromString("250.00"), Quantity: 2},
			{ProductID: "102", Name: "Pen", UnitPrice: decimal.RequireFromString("500.00"), Quantity: 1},
		},
		Subtotal:       decimal.RequireFromString("1000.00"),
		TaxAmount:      decimal.RequireFromString("180.00"),
		ShippingAmount: decimal.Zero,
		DiscountAmount: decimal.Zero,
		TotalAmount:    decimal.RequireFromString("1180.00"),
		DeliveryType:   "standard",
		PaymentMethod:  "upi",
	}
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []RazorpayOrderRequest
	err   error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req RazorpayOrderRequest) (*RazorpayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &RazorpayOrder{
		ID:       "order_abc",
		Entity:   "order",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Notes:    req.Notes,
	}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// countingStore wraps a store and counts calls. A non-nil err fails every call.
type countingStore struct {
	mu    sync.Mutex
	next  OrderStore
	calls int
	err   error
}

func (s *countingStore) CreateOrder(ctx context.Context, order *models.PurchaseOrder) (bool, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return s.next.CreateOrder(ctx, order)
}

func (s *countingStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
