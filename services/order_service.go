package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeremiapane/storefront-checkout/models"
)

// ErrOrderNotFound is returned by lookups that match no row.
var ErrOrderNotFound = errors.New("order not found")

// ErrOrderNotWritten means an insert reported success but wrote no row, which
// happens when MySQL's upsert absorbs an order number collision.
var ErrOrderNotWritten = errors.New("order insert wrote no row")

// MaxOrderHistory caps how many orders a history listing returns.
const MaxOrderHistory = 50

// OrderService reads and writes purchase orders.
type OrderService struct {
	db    *gorm.DB
	cache OrderCache
}

// NewOrderService creates an OrderService. A nil cache disables caching.
func NewOrderService(db *gorm.DB, cache OrderCache) *OrderService {
	if cache == nil {
		cache = NewNoopOrderCache()
	}
	return &OrderService{
		db:    db,
		cache: cache,
	}
}

// CreateOrder inserts order. When another row already holds the same
// gateway payment id nothing is written, order is filled with the stored row
// and created is false.
func (s *OrderService) CreateOrder(ctx context.Context, order *models.PurchaseOrder) (bool, error) {
	if order.OrderNumber == "" {
		order.OrderNumber = NewOrderNumber(time.Now())
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_payment_id"}},
			DoNothing: true,
		}).
		Create(order)
	if result.Error != nil {
		return false, result.Error
	}

	if result.RowsAffected == 0 && order.GatewayPaymentID != nil {
		existing, err := s.GetOrderByPaymentID(ctx, *order.GatewayPaymentID)
		if err != nil {
			return false, fmt.Errorf("duplicate payment %s but stored order unreadable: %w", *order.GatewayPaymentID, err)
		}
		*order = *existing
		return false, nil
	}
	if result.RowsAffected == 0 {
		return false, fmt.Errorf("%w: order number %s", ErrOrderNotWritten, order.OrderNumber)
	}

	if order.UserID != nil {
		s.cache.InvalidateUser(ctx, *order.UserID)
	}
	return true, nil
}

// GetOrderByPaymentID finds the order recorded for a gateway payment id.
func (s *OrderService) GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	err := s.db.WithContext(ctx).Where("gateway_payment_id = ?", paymentID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// HasOrderForPayment reports whether a purchase order exists for the payment id.
func (s *OrderService) HasOrderForPayment(ctx context.Context, paymentID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.PurchaseOrder{}).
		Where("gateway_payment_id = ?", paymentID).
		Count(&count).Error
	return count > 0, err
}

// GetOrderByNumber finds an order by its public order number.
func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	err := s.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListUserOrders returns the user's most recent orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]models.PurchaseOrder, error) {
	if orders, ok := s.cache.GetUserOrders(ctx, userID); ok {
		return orders, nil
	}

	orders := make([]models.PurchaseOrder, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(MaxOrderHistory).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	s.cache.SetUserOrders(ctx, userID, orders)
	return orders, nil
}

// Ping checks the database connection for the health endpoint.
func (s *OrderService) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// NewOrderNumber builds a sortable, unique public order number such as
// ORD-20261018-4F1C2A9B.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
