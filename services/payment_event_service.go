package services

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeremiapane/storefront-checkout/models"
)

// PaymentEventService stores gateway webhook events and their reconciliation state.
type PaymentEventService struct {
	db *gorm.DB
}

func NewPaymentEventService(db *gorm.DB) *PaymentEventService {
	return &PaymentEventService{db: db}
}

// RecordEvent inserts ev unless an event with the same EventID exists.
// It reports whether a row was written.
func (s *PaymentEventService) RecordEvent(ctx context.Context, ev *models.PaymentEvent) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(ev)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindUnreconciled returns received capture events created before the cutoff
// that are due for a check at now. Events checked fewer times come first, so
// a backlog of undecided events cannot hide newer ones.
func (s *PaymentEventService) FindUnreconciled(ctx context.Context, before, now time.Time, limit int) ([]models.PaymentEvent, error) {
	events := make([]models.PaymentEvent, 0)
	err := s.db.WithContext(ctx).
		Where("status = ?", models.EventStatusReceived).
		Where("event IN ?", []string{models.EventPaymentCaptured, models.EventOrderPaid}).
		Where("created_at < ?", before).
		Where("(next_check_at IS NULL OR next_check_at <= ?)", now).
		Order("check_attempts ASC").
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// DeferCheck leaves an event received and schedules its next check.
func (s *PaymentEventService) DeferCheck(ctx context.Context, id uint, paymentState string, next time.Time) error {
	updates := map[string]interface{}{
		"check_attempts": gorm.Expr("check_attempts + 1"),
		"next_check_at":  next,
	}
	if paymentState != "" {
		updates["payment_state"] = paymentState
	}
	return s.db.WithContext(ctx).Model(&models.PaymentEvent{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateStatus moves an event to status. Reconciled events get a timestamp.
func (s *PaymentEventService) UpdateStatus(ctx context.Context, id uint, status, paymentState string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if paymentState != "" {
		updates["payment_state"] = paymentState
	}
	if status == models.EventStatusReconciled {
		updates["reconciled_at"] = time.Now()
	}
	return s.db.WithContext(ctx).Model(&models.PaymentEvent{}).Where("id = ?", id).Updates(updates).Error
}

// GetEvent loads an event by its gateway event id.
func (s *PaymentEventService) GetEvent(ctx context.Context, eventID string) (*models.PaymentEvent, error) {
	var ev models.PaymentEvent
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}
