package controllers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/storefront-checkout/models"
)

func TestCreateOrder(t *testing.T) {
	env := setupTestEnv(t, envOptions{})

	w, resp := env.do(t, http.MethodPost, "/create-order", map[string]interface{}{
		"amount":         1000,
		"currency":       "INR",
		"receipt":        "order_1739251234567",
		"payment_method": "upi",
	}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "rzp_test_xxx", resp["razorpay_key_id"])
	order := resp["order"].(map[string]interface{})
	assert.Equal(t, "order_abc", order["id"])
	assert.Equal(t, float64(100000), order["amount"])
	assert.Equal(t, "INR", order["currency"])
	assert.Equal(t, int64(1), env.hits.Load())
}

func TestCreateOrder_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"zero amount", map[string]interface{}{"amount": 0, "receipt": "r1"}},
		{"negative amount", map[string]interface{}{"amount": -5, "receipt": "r1"}},
		{"non-numeric amount", map[string]interface{}{"amount": "abc", "receipt": "r1"}},
		{"missing receipt", map[string]interface{}{"amount": 10}},
		{"malformed json", `{"amount":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t, envOptions{})
			w, resp := env.do(t, http.MethodPost, "/create-order", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, resp["success"])
			assert.NotEmpty(t, resp["error"])
			assert.Equal(t, int64(0), env.hits.Load())
		})
	}
}

func TestCreateOrder_GatewayRejects(t *testing.T) {
	env := setupTestEnv(t, envOptions{
		gatewayStatus: http.StatusBadRequest,
		gatewayBody:   `{"error":{"code":"BAD_REQUEST_ERROR","description":"secret internal detail"}}`,
	})

	w, resp := env.do(t, http.MethodPost, "/create-order", map[string]interface{}{"amount": 10, "receipt": "r1"}, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "status 400")
	assert.NotContains(t, resp["error"], "secret internal detail")
}

func TestCreateOrder_MissingSecret(t *testing.T) {
	env := setupTestEnv(t, envOptions{keySecret: "-"})

	w, resp := env.do(t, http.MethodPost, "/create-order", map[string]interface{}{"amount": 1000, "receipt": "r1"}, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, int64(0), env.hits.Load())
}

func TestVerifyPayment(t *testing.T) {
	env := setupTestEnv(t, envOptions{})

	w, resp := env.do(t, http.MethodPost, "/verify-payment", map[string]interface{}{
		"razorpay_order_id":   "order_abc",
		"razorpay_payment_id": "pay_123",
		"razorpay_signature":  sign(testKeySecret, "order_abc|pay_123"),
		"order_details":       orderDetailsPayload("user-1"),
	}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, true, resp["verified"])
	assert.NotEmpty(t, resp["order_number"])

	var order models.PurchaseOrder
	require.NoError(t, env.db.Where("gateway_payment_id = ?", "pay_123").First(&order).Error)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.Equal(t, resp["order_number"], order.OrderNumber)
	assert.Equal(t, models.ProductRef("101"), order.Items[0].ProductID)
}

func TestVerifyPayment_TamperedSignature(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	sig := []byte(sign(testKeySecret, "order_abc|pay_123"))
	if sig[5] == 'a' {
		sig[5] = 'b'
	} else {
		sig[5] = 'a'
	}

	w, resp := env.do(t, http.MethodPost, "/verify-payment", map[string]interface{}{
		"razorpay_order_id":   "order_abc",
		"razorpay_payment_id": "pay_123",
		"razorpay_signature":  string(sig),
		"order_details":       orderDetailsPayload(""),
	}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, false, resp["verified"])
	assert.NotContains(t, resp, "order_number")

	var count int64
	env.db.Model(&models.PurchaseOrder{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestVerifyPayment_Replay(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	body := map[string]interface{}{
		"razorpay_order_id":   "order_abc",
		"razorpay_payment_id": "pay_123",
		"razorpay_signature":  sign(testKeySecret, "order_abc|pay_123"),
		"order_details":       orderDetailsPayload(""),
	}

	_, first := env.do(t, http.MethodPost, "/verify-payment", body, nil)
	w, second := env.do(t, http.MethodPost, "/verify-payment", body, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, second["verified"])
	assert.Equal(t, first["order_number"], second["order_number"])

	var count int64
	env.db.Model(&models.PurchaseOrder{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestVerifyPayment_BadRequests(t *testing.T) {
	details := orderDetailsPayload("")
	delete(details, "items")

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing signature", map[string]interface{}{
			"razorpay_order_id":   "order_abc",
			"razorpay_payment_id": "pay_123",
			"order_details":       orderDetailsPayload(""),
		}},
		{"no items", map[string]interface{}{
			"razorpay_order_id":   "order_abc",
			"razorpay_payment_id": "pay_123",
			"razorpay_signature":  sign(testKeySecret, "order_abc|pay_123"),
			"order_details":       details,
		}},
		{"malformed json", `{"razorpay_order_id":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t, envOptions{})
			w, resp := env.do(t, http.MethodPost, "/verify-payment", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, resp["success"])
		})
	}
}

func TestVerifyPayment_MissingSecret(t *testing.T) {
	env := setupTestEnv(t, envOptions{keySecret: "-"})

	w, resp := env.do(t, http.MethodPost, "/verify-payment", map[string]interface{}{
		"razorpay_order_id":   "order_abc",
		"razorpay_payment_id": "pay_123",
		"razorpay_signature":  sign(testKeySecret, "order_abc|pay_123"),
		"order_details":       orderDetailsPayload(""),
	}, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "payment service is not configured", resp["error"])

	var count int64
	env.db.Model(&models.PurchaseOrder{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestVerifyPayment_PersistenceFailureNamesPayment(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, resp := env.do(t, http.MethodPost, "/verify-payment", map[string]interface{}{
		"razorpay_order_id":   "order_abc",
		"razorpay_payment_id": "pay_123",
		"razorpay_signature":  sign(testKeySecret, "order_abc|pay_123"),
		"order_details":       orderDetailsPayload(""),
	}, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "pay_123")
}

func TestPlaceCODOrder(t *testing.T) {
	env := setupTestEnv(t, envOptions{})

	w, resp := env.do(t, http.MethodPost, "/cod-order", map[string]interface{}{
		"order_details": orderDetailsPayload("user-1"),
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, resp["order_number"])
	assert.Equal(t, int64(0), env.hits.Load())

	var order models.PurchaseOrder
	require.NoError(t, env.db.Where("order_number = ?", resp["order_number"]).First(&order).Error)
	assert.Equal(t, models.PaymentMethodCOD, order.PaymentMethod)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
}
