package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/storefront-checkout/services"
	"github.com/yeremiapane/storefront-checkout/utils"
)

type CheckoutController struct {
	checkout *services.CheckoutService
}

func NewCheckoutController(checkout *services.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

type createOrderRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Receipt       string          `json:"receipt"`
	PaymentMethod string          `json:"payment_method"`
}

// CreateOrder handles POST /create-order.
func (cc *CheckoutController) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := cc.checkout.CreateOrder(c.Request.Context(), services.OrderIntent{
		Amount:        req.Amount,
		Currency:      req.Currency,
		Receipt:       req.Receipt,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		respondServiceError(c, err, logrus.Fields{"receipt": req.Receipt, "amount": req.Amount.String()})
		return
	}

	utils.RespondJSON(c, http.StatusOK, gin.H{
		"order":           result.Order,
		"razorpay_key_id": result.KeyID,
	})
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string                `json:"razorpay_order_id"`
	RazorpayPaymentID string                `json:"razorpay_payment_id"`
	RazorpaySignature string                `json:"razorpay_signature"`
	OrderDetails      services.OrderDetails `json:"order_details"`
}

// VerifyPayment handles POST /verify-payment.
func (cc *CheckoutController) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := cc.checkout.VerifyPayment(c.Request.Context(), services.PaymentVerification{
		GatewayOrderID: req.RazorpayOrderID,
		PaymentID:      req.RazorpayPaymentID,
		Signature:      req.RazorpaySignature,
		Details:        req.OrderDetails,
	})
	if err != nil {
		fields := logrus.Fields{
			"gateway_order_id":   req.RazorpayOrderID,
			"gateway_payment_id": req.RazorpayPaymentID,
		}
		if errors.Is(err, services.ErrPersistence) {
			utils.ErrorLogger.WithFields(fields).WithError(err).Error("verify-payment failed after verification")
			_ = c.Error(err)
			utils.RespondError(c, http.StatusInternalServerError, fmt.Sprintf(
				"payment received but the order could not be recorded; please contact support with payment id %s",
				req.RazorpayPaymentID,
			))
			return
		}
		respondServiceError(c, err, fields)
		return
	}

	body := gin.H{"verified": result.Verified}
	if result.Verified {
		body["order_number"] = result.Order.OrderNumber
	}
	utils.RespondJSON(c, http.StatusOK, body)
}

type codOrderRequest struct {
	OrderDetails services.OrderDetails `json:"order_details"`
}

// PlaceCODOrder handles POST /cod-order.
func (cc *CheckoutController) PlaceCODOrder(c *gin.Context) {
	var req codOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := cc.checkout.PlaceCODOrder(c.Request.Context(), req.OrderDetails)
	if err != nil {
		respondServiceError(c, err, logrus.Fields{"payment_method": "cod"})
		return
	}

	utils.RespondJSON(c, http.StatusCreated, gin.H{
		"order_number": order.OrderNumber,
		"order_status": order.OrderStatus,
	})
}
