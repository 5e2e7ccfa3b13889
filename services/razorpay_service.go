package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/storefront-checkout/config"
	"github.com/yeremiapane/storefront-checkout/utils"
)

// Gateway-side payment states as reported by GET /v1/payments/{id}
const (
	GatewayPaymentCreated    = "created"
	GatewayPaymentAuthorized = "authorized"
	GatewayPaymentCaptured   = "captured"
	GatewayPaymentRefunded   = "refunded"
	GatewayPaymentFailed     = "failed"
)

// maxErrorBody bounds how much of a failed gateway response is kept in errors.
const maxErrorBody = 2048

// RazorpayService handles Razorpay API interactions
type RazorpayService struct {
	config     config.RazorpayConfig
	httpClient *http.Client
}

// NewRazorpayService creates a client with the configured timeout.
func NewRazorpayService(cfg config.RazorpayConfig) *RazorpayService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RazorpayService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ValidateConfig reports the first missing API credential.
func (rs *RazorpayService) ValidateConfig() error {
	if rs.config.KeyID == "" {
		return configurationError("RAZORPAY_KEY_ID")
	}
	if rs.config.KeySecret == "" {
		return configurationError("RAZORPAY_KEY_SECRET")
	}
	return nil
}

// KeyID is the publishable key the hosted checkout widget is initialised with.
func (rs *RazorpayService) KeyID() string {
	return rs.config.KeyID
}

// RazorpayOrderRequest is the body of POST /v1/orders. Amount is in minor units.
type RazorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// RazorpayOrder is the order entity returned by the gateway.
type RazorpayOrder struct {
	ID         string            `json:"id"`
	Entity     string            `json:"entity"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	AmountDue  int64             `json:"amount_due"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	Notes      map[string]string `json:"notes,omitempty"`
	CreatedAt  int64             `json:"created_at"`
}

// RazorpayPayment is the subset of the payment entity used for reconciliation.
type RazorpayPayment struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	OrderID   string `json:"order_id"`
	Method    string `json:"method"`
	Captured  bool   `json:"captured"`
	Email     string `json:"email"`
	Contact   string `json:"contact"`
	CreatedAt int64  `json:"created_at"`
}

// CreateOrder creates a gateway order. It is never retried here; the caller
// restarts the checkout instead.
func (rs *RazorpayService) CreateOrder(ctx context.Context, req RazorpayOrderRequest) (*RazorpayOrder, error) {
	if err := rs.ValidateConfig(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	var order RazorpayOrder
	if err := rs.do(ctx, http.MethodPost, "/v1/orders", bytes.NewReader(body), &order); err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"gateway_order_id": order.ID,
		"amount":           order.Amount,
		"currency":         order.Currency,
		"receipt":          order.Receipt,
	}).Info("razorpay order created")

	return &order, nil
}

// FetchPayment reads a payment's current state from the gateway.
func (rs *RazorpayService) FetchPayment(ctx context.Context, paymentID string) (*RazorpayPayment, error) {
	if err := rs.ValidateConfig(); err != nil {
		return nil, err
	}
	if paymentID == "" {
		return nil, validationError("payment id is required")
	}

	var payment RazorpayPayment
	if err := rs.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// VerifyWebhookSignature checks X-Razorpay-Signature: hex(HMAC-SHA256(webhook_secret, raw body)).
func (rs *RazorpayService) VerifyWebhookSignature(body []byte, signature string) (bool, error) {
	if rs.config.WebhookSecret == "" {
		return false, configurationError("RAZORPAY_WEBHOOK_SECRET")
	}
	expected := hmacHex([]byte(rs.config.WebhookSecret), body)
	return constantTimeEqual(expected, signature), nil
}

func (rs *RazorpayService) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, rs.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.SetBasicAuth(rs.config.KeyID, rs.config.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := rs.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s %s: %v", ErrGatewayTimeout, method, path, err)
		}
		return fmt.Errorf("%w: %s %s: %v", ErrGateway, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: reading response: %v", ErrGatewayTimeout, err)
		}
		return fmt.Errorf("%w: reading response: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(respBody))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &GatewayError{StatusCode: resp.StatusCode, Body: text}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: error unmarshaling response: %v", ErrGateway, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
