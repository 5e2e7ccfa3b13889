package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment status of a purchase order
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

// Order status of a purchase order
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment methods recorded on a purchase order
const (
	PaymentMethodRazorpay = "razorpay"
	PaymentMethodCOD      = "cod"
)

// PurchaseOrder is the durable record of a placed order. Items and addresses are
// snapshots taken at checkout time, not references to catalog rows.
type PurchaseOrder struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	OrderNumber string  `gorm:"type:varchar(40);uniqueIndex;not null" json:"order_number"`
	UserID      *string `gorm:"type:varchar(64);index" json:"user_id"`

	CustomerName  string `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail string `gorm:"type:varchar(255)" json:"customer_email"`
	CustomerPhone string `gorm:"type:varchar(32)" json:"customer_phone"`

	ShippingAddress datatypes.JSONType[Address]   `json:"shipping_address"`
	BillingAddress  datatypes.JSONType[*Address]  `json:"billing_address"`
	Items           datatypes.JSONSlice[LineItem] `json:"items"`

	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tax_amount"`
	ShippingAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"shipping_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_amount"`

	DeliveryType  string `gorm:"type:varchar(32)" json:"delivery_type"`
	PaymentMethod string `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentStatus string `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	OrderStatus   string `gorm:"type:varchar(20);not null;default:'pending'" json:"order_status"`

	GatewayOrderID   *string `gorm:"type:varchar(64);index" json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string `gorm:"type:varchar(64);uniqueIndex" json:"gateway_payment_id,omitempty"`
	GatewaySignature *string `gorm:"type:varchar(128)" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (PurchaseOrder) TableName() string {
	return "orders"
}

// IsOwnedBy reports whether the order was placed by the given signed-in user.
func (o *PurchaseOrder) IsOwnedBy(userID string) bool {
	return o.UserID != nil && userID != "" && *o.UserID == userID
}
