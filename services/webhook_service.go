package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/storefront-checkout/metrics"
	"github.com/yeremiapane/storefront-checkout/models"
	"github.com/yeremiapane/storefront-checkout/utils"
)

// ErrInvalidSignature means a webhook body did not match its signature header.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookVerifier checks webhook signatures.
type WebhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) (bool, error)
}

// PaymentLookup answers whether a purchase order exists for a payment.
type PaymentLookup interface {
	HasOrderForPayment(ctx context.Context, paymentID string) (bool, error)
}

// EventRecorder stores webhook events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, ev *models.PaymentEvent) (bool, error)
}

type WebhookService struct {
	verifier WebhookVerifier
	events   EventRecorder
	orders   PaymentLookup
	metrics  *metrics.Metrics
}

func NewWebhookService(verifier WebhookVerifier, events EventRecorder, orders PaymentLookup, m *metrics.Metrics) *WebhookService {
	return &WebhookService{
		verifier: verifier,
		events:   events,
		orders:   orders,
		metrics:  m,
	}
}

type webhookEnvelope struct {
	Entity    string `json:"entity"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity RazorpayPayment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity RazorpayOrder `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// WebhookResult says what happened to a delivery.
type WebhookResult struct {
	Event   string
	Stored  bool
	Status  string
	Ignored bool
}

// HandleWebhook authenticates a raw webhook delivery and stores the payment
// event it carries. eventID is the X-Razorpay-Event-Id header and may be empty.
func (s *WebhookService) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error) {
	ok, err := s.verifier.VerifyWebhookSignature(body, signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		return nil, ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, validationError("webhook body is not valid JSON")
	}

	switch env.Event {
	case models.EventPaymentCaptured, models.EventPaymentFailed, models.EventOrderPaid:
	default:
		s.metrics.WebhookEvents.WithLabelValues(env.Event, "ignored").Inc()
		return &WebhookResult{Event: env.Event, Ignored: true}, nil
	}
	if env.Payload.Payment == nil || env.Payload.Payment.Entity.ID == "" {
		return nil, validationError("%s event carries no payment entity", env.Event)
	}

	payment := env.Payload.Payment.Entity
	ev := &models.PaymentEvent{
		EventID:          strings.TrimSpace(eventID),
		Event:            env.Event,
		GatewayOrderID:   payment.OrderID,
		GatewayPaymentID: payment.ID,
		Amount:           payment.Amount,
		Currency:         payment.Currency,
		PaymentState:     payment.Status,
		Status:           models.EventStatusReceived,
		Payload:          body,
	}
	if ev.EventID == "" {
		ev.EventID = env.Event + ":" + payment.ID
	}
	if ev.GatewayOrderID == "" && env.Payload.Order != nil {
		ev.GatewayOrderID = env.Payload.Order.Entity.ID
	}

	switch env.Event {
	case models.EventPaymentFailed:
		ev.Status = models.EventStatusDismissed
	default:
		recorded, err := s.orders.HasOrderForPayment(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		if recorded {
			ev.Status = models.EventStatusReconciled
		}
	}

	stored, err := s.events.RecordEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	outcome := ev.Status
	if !stored {
		outcome = "duplicate"
	}
	s.metrics.WebhookEvents.WithLabelValues(env.Event, outcome).Inc()
	utils.InfoLogger.WithFields(logrus.Fields{
		"event":              env.Event,
		"event_id":           ev.EventID,
		"gateway_payment_id": payment.ID,
		"status":             outcome,
	}).Info("payment webhook received")

	return &WebhookResult{Event: env.Event, Stored: stored, Status: ev.Status}, nil
}
