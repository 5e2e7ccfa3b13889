package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/yeremiapane/storefront-checkout/metrics"
	"github.com/yeremiapane/storefront-checkout/models"
	"github.com/yeremiapane/storefront-checkout/utils"
)

// maxReceiptLength is the gateway's limit on the receipt field.
const maxReceiptLength = 40

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// OrderGateway creates orders on the payment gateway.
type OrderGateway interface {
	CreateOrder(ctx context.Context, req RazorpayOrderRequest) (*RazorpayOrder, error)
}

// OrderStore persists purchase orders. CreateOrder reports false when the
// gateway payment id was already recorded.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.PurchaseOrder) (bool, error)
}

type CheckoutConfig struct {
	KeyID           string
	KeySecret       string
	DefaultCurrency string
	// MaxOrderAmount caps a single order in major units. Zero means no cap.
	MaxOrderAmount  decimal.Decimal
	PersistAttempts int
	PersistBackoff  time.Duration
	// PersistTimeout bounds all insert attempts for one order.
	PersistTimeout time.Duration
}

const defaultPersistTimeout = 10 * time.Second

// CheckoutService runs the order intent, payment verification and
// cash-on-delivery flows. It holds no per-request state.
type CheckoutService struct {
	config  CheckoutConfig
	gateway OrderGateway
	store   OrderStore
	signer  *PaymentSigner
	metrics *metrics.Metrics
}

func NewCheckoutService(cfg CheckoutConfig, gateway OrderGateway, store OrderStore, m *metrics.Metrics) *CheckoutService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "INR"
	}
	if cfg.PersistAttempts < 1 {
		cfg.PersistAttempts = 1
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	return &CheckoutService{
		config:  cfg,
		gateway: gateway,
		store:   store,
		signer:  NewPaymentSigner(cfg.KeySecret),
		metrics: m,
	}
}

// OrderIntent is one checkout attempt. Amount is in major units.
type OrderIntent struct {
	Amount        decimal.Decimal
	Currency      string
	Receipt       string
	PaymentMethod string
}

type OrderIntentResult struct {
	Order *RazorpayOrder
	KeyID string
}

// CreateOrder creates a gateway order for the intent and returns it with the
// publishable key id.
func (s *CheckoutService) CreateOrder(ctx context.Context, intent OrderIntent) (*OrderIntentResult, error) {
	if s.config.KeyID == "" {
		return nil, configurationError("RAZORPAY_KEY_ID")
	}
	if s.config.KeySecret == "" {
		return nil, configurationError("RAZORPAY_KEY_SECRET")
	}

	if !intent.Amount.IsPositive() {
		return nil, validationError("amount must be a positive number")
	}
	if s.config.MaxOrderAmount.IsPositive() && intent.Amount.GreaterThan(s.config.MaxOrderAmount) {
		return nil, validationError("amount must not exceed %s", s.config.MaxOrderAmount.String())
	}
	minor, err := utils.ToMinorUnits(intent.Amount)
	if err != nil {
		return nil, validationError("amount %s cannot be expressed in minor currency units", intent.Amount.String())
	}
	if minor < 1 {
		return nil, validationError("amount is smaller than one minor currency unit")
	}

	receipt := strings.TrimSpace(intent.Receipt)
	if receipt == "" {
		return nil, validationError("receipt is required")
	}
	if len(receipt) > maxReceiptLength {
		return nil, validationError("receipt must be at most %d characters", maxReceiptLength)
	}

	currency := strings.ToUpper(strings.TrimSpace(intent.Currency))
	if currency == "" {
		currency = s.config.DefaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return nil, validationError("currency %q is not an ISO 4217 code", intent.Currency)
	}

	req := RazorpayOrderRequest{
		Amount:   minor,
		Currency: currency,
		Receipt:  receipt,
	}
	if method := strings.ToLower(strings.TrimSpace(intent.PaymentMethod)); method != "" {
		req.Notes = map[string]string{"payment_method": method}
	}

	order, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		s.metrics.GatewayOrders.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	s.metrics.GatewayOrders.WithLabelValues("created").Inc()

	return &OrderIntentResult{Order: order, KeyID: s.config.KeyID}, nil
}

// OrderDetails is the purchase order payload the storefront submits. Money
// fields are taken as supplied.
type OrderDetails struct {
	UserID          *string           `json:"user_id"`
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerPhone   string            `json:"customer_phone"`
	ShippingAddress models.Address    `json:"shipping_address"`
	BillingAddress  *models.Address   `json:"billing_address"`
	Items           []models.LineItem `json:"items"`
	Subtotal        decimal.Decimal   `json:"subtotal"`
	TaxAmount       decimal.Decimal   `json:"gst_amount"`
	ShippingAmount  decimal.Decimal   `json:"shipping_amount"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	DeliveryType    string            `json:"delivery_type"`
	PaymentMethod   string            `json:"payment_method"`
}

func (d *OrderDetails) validate() error {
	if strings.TrimSpace(d.CustomerName) == "" {
		return validationError("customer_name is required")
	}
	if d.ShippingAddress.IsZero() {
		return validationError("shipping_address is required")
	}
	if len(d.Items) == 0 {
		return validationError("order must contain at least one item")
	}
	for i, item := range d.Items {
		if item.ProductID == "" {
			return validationError("items[%d]: id is required", i)
		}
		if item.Quantity < 1 {
			return validationError("items[%d]: quantity must be at least 1", i)
		}
		if item.UnitPrice.IsNegative() {
			return validationError("items[%d]: price must not be negative", i)
		}
	}
	for name, v := range map[string]decimal.Decimal{
		"subtotal":        d.Subtotal,
		"gst_amount":      d.TaxAmount,
		"shipping_amount": d.ShippingAmount,
		"discount_amount": d.DiscountAmount,
		"total_amount":    d.TotalAmount,
	} {
		if v.IsNegative() {
			return validationError("%s must not be negative", name)
		}
	}
	return nil
}

// totalsMismatch describes how the client totals disagree with the items, or
// returns "" when they agree.
func (d *OrderDetails) totalsMismatch() string {
	sum := decimal.Zero
	for _, item := range d.Items {
		sum = sum.Add(item.LineTotal())
	}
	if !sum.Round(2).Equal(d.Subtotal.Round(2)) {
		return fmt.Sprintf("subtotal %s but items sum to %s", d.Subtotal.StringFixed(2), sum.StringFixed(2))
	}
	expected := d.Subtotal.Add(d.TaxAmount).Add(d.ShippingAmount).Sub(d.DiscountAmount)
	if !expected.Round(2).Equal(d.TotalAmount.Round(2)) {
		return fmt.Sprintf("total %s but components add up to %s", d.TotalAmount.StringFixed(2), expected.StringFixed(2))
	}
	return ""
}

func (d *OrderDetails) toPurchaseOrder() *models.PurchaseOrder {
	order := &models.PurchaseOrder{
		UserID:         d.UserID,
		CustomerName:   strings.TrimSpace(d.CustomerName),
		CustomerEmail:  strings.TrimSpace(d.CustomerEmail),
		CustomerPhone:  strings.TrimSpace(d.CustomerPhone),
		Items:          d.Items,
		Subtotal:       d.Subtotal,
		TaxAmount:      d.TaxAmount,
		ShippingAmount: d.ShippingAmount,
		DiscountAmount: d.DiscountAmount,
		TotalAmount:    d.TotalAmount,
		DeliveryType:   d.DeliveryType,
	}
	if order.UserID != nil && strings.TrimSpace(*order.UserID) == "" {
		order.UserID = nil
	}
	order.ShippingAddress = datatypes.NewJSONType(d.ShippingAddress)
	order.BillingAddress = datatypes.NewJSONType(d.BillingAddress)
	return order
}

// PaymentVerification is what the storefront sends after the hosted checkout
// completes. Every field is caller controlled.
type PaymentVerification struct {
	GatewayOrderID string
	PaymentID      string
	Signature      string
	Details        OrderDetails
}

type VerificationResult struct {
	Verified bool
	// Order is the recorded order when Verified is true.
	Order *models.PurchaseOrder
	// Duplicate is true when the payment had already been recorded.
	Duplicate bool
}

// VerifyPayment checks the checkout signature and, only when it matches,
// records the purchase order. A mismatch is a negative result, not an error.
func (s *CheckoutService) VerifyPayment(ctx context.Context, pv PaymentVerification) (*VerificationResult, error) {
	if s.config.KeySecret == "" {
		return nil, configurationError("RAZORPAY_KEY_SECRET")
	}

	// Values are signed and stored exactly as supplied.
	if blank(pv.GatewayOrderID) || blank(pv.PaymentID) || blank(pv.Signature) {
		return nil, validationError("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}
	if err := pv.Details.validate(); err != nil {
		return nil, err
	}

	log := utils.InfoLogger.WithFields(logrus.Fields{
		"gateway_order_id":   pv.GatewayOrderID,
		"gateway_payment_id": pv.PaymentID,
	})

	if !s.signer.Verify(pv.GatewayOrderID, pv.PaymentID, pv.Signature) {
		s.metrics.Verifications.WithLabelValues("rejected").Inc()
		log.Warn("payment signature mismatch")
		return &VerificationResult{Verified: false}, nil
	}
	s.metrics.Verifications.WithLabelValues("verified").Inc()

	s.checkTotals(&pv.Details, log)

	order := pv.Details.toPurchaseOrder()
	order.PaymentMethod = models.PaymentMethodRazorpay
	order.PaymentStatus = models.PaymentStatusCompleted
	order.OrderStatus = models.OrderStatusConfirmed
	order.GatewayOrderID = &pv.GatewayOrderID
	order.GatewayPaymentID = &pv.PaymentID
	order.GatewaySignature = &pv.Signature

	created, err := s.persist(ctx, order)
	if err != nil {
		s.metrics.PersistenceErrors.Inc()
		utils.ErrorLogger.WithFields(logrus.Fields{
			"alert":              "verified_payment_not_recorded",
			"gateway_order_id":   pv.GatewayOrderID,
			"gateway_payment_id": pv.PaymentID,
			"customer_email":     order.CustomerEmail,
			"total":              utils.FormatCurrency(order.TotalAmount, s.config.DefaultCurrency),
		}).WithError(err).Error("payment verified but order could not be recorded")
		return nil, fmt.Errorf("%w: payment %s verified but order not recorded: %v", ErrPersistence, pv.PaymentID, err)
	}

	if created {
		s.metrics.OrdersRecorded.WithLabelValues(models.PaymentMethodRazorpay).Inc()
		log.WithField("order_number", order.OrderNumber).Info("order recorded for verified payment")
	} else {
		log.WithField("order_number", order.OrderNumber).Info("payment already recorded")
	}

	return &VerificationResult{Verified: true, Order: order, Duplicate: !created}, nil
}

// PlaceCODOrder records a cash-on-delivery order. There is no payment proof
// to check, so the order is stored with a pending payment.
func (s *CheckoutService) PlaceCODOrder(ctx context.Context, details OrderDetails) (*models.PurchaseOrder, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}

	log := utils.InfoLogger.WithField("payment_method", models.PaymentMethodCOD)
	s.checkTotals(&details, log)

	order := details.toPurchaseOrder()
	order.PaymentMethod = models.PaymentMethodCOD
	order.PaymentStatus = models.PaymentStatusPending
	order.OrderStatus = models.OrderStatusConfirmed

	if _, err := s.persist(ctx, order); err != nil {
		utils.ErrorLogger.WithError(err).Error("cash-on-delivery order could not be recorded")
		return nil, fmt.Errorf("%w: cash-on-delivery order not recorded: %v", ErrPersistence, err)
	}

	s.metrics.OrdersRecorded.WithLabelValues(models.PaymentMethodCOD).Inc()
	log.WithField("order_number", order.OrderNumber).Info("cash-on-delivery order recorded")
	return order, nil
}

// persist writes the order, retrying with linear backoff. Cancelling ctx does
// not stop the write; PersistTimeout bounds the whole loop.
func (s *CheckoutService) persist(ctx context.Context, order *models.PurchaseOrder) (bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.PersistTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= s.config.PersistAttempts; attempt++ {
		if attempt > 1 {
			// A failed attempt may still have committed under its order
			// number, so each retry draws a fresh one.
			order.ID = 0
			order.OrderNumber = ""
		}
		created, err := s.store.CreateOrder(ctx, order)
		if err == nil {
			return created, nil
		}
		lastErr = err
		utils.ErrorLogger.WithFields(logrus.Fields{
			"attempt":      attempt,
			"order_number": order.OrderNumber,
		}).WithError(err).Warn("order insert failed")

		if attempt == s.config.PersistAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("%v (gave up: %w)", lastErr, ctx.Err())
		case <-time.After(s.config.PersistBackoff * time.Duration(attempt)):
		}
	}
	return false, lastErr
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func (s *CheckoutService) checkTotals(d *OrderDetails, log *logrus.Entry) {
	if msg := d.totalsMismatch(); msg != "" {
		s.metrics.TotalsMismatches.Inc()
		log.WithField("mismatch", msg).Warn("client totals do not match line items")
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrGatewayTimeout):
		return "timeout"
	case errors.Is(err, ErrConfiguration):
		return "misconfigured"
	default:
		return "gateway_error"
	}
}
