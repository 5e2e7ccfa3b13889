package models

import (
	"time"

	"gorm.io/datatypes"
)

// Reconciliation status of a received gateway event
const (
	EventStatusReceived   = "received"
	EventStatusReconciled = "reconciled"
	EventStatusOrphaned   = "orphaned"
	EventStatusDismissed  = "dismissed"
)

// Razorpay webhook events this service stores
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// PaymentEvent is a webhook notification from the payment gateway. Captured
// payments that never produced a PurchaseOrder are found through these rows.
type PaymentEvent struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	EventID          string         `gorm:"type:varchar(128);uniqueIndex;not null" json:"event_id"`
	Event            string         `gorm:"type:varchar(64);not null;index" json:"event"`
	GatewayOrderID   string         `gorm:"type:varchar(64);index" json:"gateway_order_id"`
	GatewayPaymentID string         `gorm:"type:varchar(64);index" json:"gateway_payment_id"`
	Amount           int64          `json:"amount"`
	Currency         string         `gorm:"type:varchar(3)" json:"currency"`
	PaymentState     string         `gorm:"type:varchar(20)" json:"payment_state"`
	Status           string         `gorm:"type:varchar(20);not null;default:'received';index" json:"status"`
	Payload          datatypes.JSON `json:"payload"`
	CheckAttempts    int            `gorm:"not null;default:0" json:"check_attempts"`
	NextCheckAt      *time.Time     `gorm:"index" json:"next_check_at,omitempty"`
	ReconciledAt     *time.Time     `json:"reconciled_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}
