package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/storefront-checkout/metrics"
	"github.com/yeremiapane/storefront-checkout/models"
	"github.com/yeremiapane/storefront-checkout/utils"
)

// PaymentFetcher reads a payment's state from the gateway.
type PaymentFetcher interface {
	FetchPayment(ctx context.Context, paymentID string) (*RazorpayPayment, error)
}

// EventStore is the event persistence the worker needs.
type EventStore interface {
	FindUnreconciled(ctx context.Context, before, now time.Time, limit int) ([]models.PaymentEvent, error)
	UpdateStatus(ctx context.Context, id uint, status, paymentState string) error
	DeferCheck(ctx context.Context, id uint, paymentState string, next time.Time) error
}

// maxRecheckDelay caps the backoff between checks of an undecided event.
const maxRecheckDelay = 6 * time.Hour

// ReconciliationWorker looks for captured payments that never turned into a
// purchase order, which happens when the storefront never called
// verify-payment or the insert failed after verification.
type ReconciliationWorker struct {
	events   EventStore
	orders   PaymentLookup
	gateway  PaymentFetcher
	metrics  *metrics.Metrics
	interval time.Duration
	grace    time.Duration
	batch    int
	now      func() time.Time
}

func NewReconciliationWorker(
	events EventStore,
	orders PaymentLookup,
	gateway PaymentFetcher,
	m *metrics.Metrics,
	interval, grace time.Duration,
	batch int,
) *ReconciliationWorker {
	if batch < 1 {
		batch = 50
	}
	return &ReconciliationWorker{
		events:   events,
		orders:   orders,
		gateway:  gateway,
		metrics:  m,
		interval: interval,
		grace:    grace,
		batch:    batch,
		now:      time.Now,
	}
}

// Run processes a batch every interval until ctx is cancelled.
func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	utils.InfoLogger.WithField("interval", rw.interval.String()).Info("reconciliation worker started")

	for {
		select {
		case <-ctx.Done():
			utils.InfoLogger.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := rw.RunOnce(ctx); err != nil {
				utils.ErrorLogger.WithError(err).Error("reconciliation pass failed")
			}
		}
	}
}

// ReconcileSummary counts the decisions of one pass.
type ReconcileSummary struct {
	Reconciled int
	Orphaned   int
	Dismissed  int
	Deferred   int
}

// RunOnce handles one batch of events older than the grace period.
func (rw *ReconciliationWorker) RunOnce(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary

	now := rw.now()
	events, err := rw.events.FindUnreconciled(ctx, now.Add(-rw.grace), now, rw.batch)
	if err != nil {
		return summary, err
	}
	if len(events) == 0 {
		return summary, nil
	}

	utils.InfoLogger.Infof("Found %d unreconciled payment events", len(events))

	for _, ev := range events {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		log := utils.InfoLogger.WithFields(logrus.Fields{
			"event_id":           ev.EventID,
			"gateway_payment_id": ev.GatewayPaymentID,
			"gateway_order_id":   ev.GatewayOrderID,
		})

		recorded, err := rw.orders.HasOrderForPayment(ctx, ev.GatewayPaymentID)
		if err != nil {
			return summary, err
		}
		if recorded {
			if err := rw.events.UpdateStatus(ctx, ev.ID, models.EventStatusReconciled, ""); err != nil {
				return summary, err
			}
			summary.Reconciled++
			rw.metrics.ReconcileOutcomes.WithLabelValues(models.EventStatusReconciled).Inc()
			log.Info("payment event reconciled with recorded order")
			continue
		}

		payment, err := rw.gateway.FetchPayment(ctx, ev.GatewayPaymentID)
		if err != nil {
			log.WithError(err).Warn("could not fetch payment state from gateway")
			if err := rw.deferCheck(ctx, ev, "", now); err != nil {
				return summary, err
			}
			summary.Deferred++
			continue
		}

		var status string
		switch payment.Status {
		case GatewayPaymentCaptured:
			status = models.EventStatusOrphaned
		case GatewayPaymentFailed, GatewayPaymentRefunded:
			status = models.EventStatusDismissed
		default:
			if err := rw.deferCheck(ctx, ev, payment.Status, now); err != nil {
				return summary, err
			}
			summary.Deferred++
			continue
		}

		if err := rw.events.UpdateStatus(ctx, ev.ID, status, payment.Status); err != nil {
			return summary, err
		}
		rw.metrics.ReconcileOutcomes.WithLabelValues(status).Inc()

		if status == models.EventStatusOrphaned {
			summary.Orphaned++
			utils.ErrorLogger.WithFields(logrus.Fields{
				"alert":              "captured_payment_without_order",
				"event_id":           ev.EventID,
				"gateway_payment_id": ev.GatewayPaymentID,
				"gateway_order_id":   ev.GatewayOrderID,
				"amount":             utils.FormatCurrency(utils.FromMinorUnits(payment.Amount), payment.Currency),
				"email":              payment.Email,
				"contact":            payment.Contact,
			}).Error("captured payment has no purchase order")
		} else {
			summary.Dismissed++
			log.WithField("payment_state", payment.Status).Info("payment event dismissed")
		}
	}

	return summary, nil
}

func (rw *ReconciliationWorker) deferCheck(ctx context.Context, ev models.PaymentEvent, paymentState string, now time.Time) error {
	return rw.events.DeferCheck(ctx, ev.ID, paymentState, now.Add(rw.recheckDelay(ev.CheckAttempts)))
}

// recheckDelay doubles the wait after every inconclusive check.
func (rw *ReconciliationWorker) recheckDelay(attempts int) time.Duration {
	delay := rw.interval
	if delay <= 0 {
		delay = time.Minute
	}
	for i := 0; i < attempts && delay < maxRecheckDelay; i++ {
		delay *= 2
	}
	if delay > maxRecheckDelay {
		delay = maxRecheckDelay
	}
	return delay
}
