package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// PaymentSigner computes and checks Razorpay checkout signatures:
// hex(HMAC-SHA256(key_secret, order_id + "|" + payment_id)).
type PaymentSigner struct {
	secret []byte
}

func NewPaymentSigner(secret string) *PaymentSigner {
	return &PaymentSigner{secret: []byte(secret)}
}

func (s *PaymentSigner) Sign(gatewayOrderID, paymentID string) string {
	return hmacHex(s.secret, []byte(gatewayOrderID+"|"+paymentID))
}

// Verify compares in constant time.
func (s *PaymentSigner) Verify(gatewayOrderID, paymentID, signature string) bool {
	return constantTimeEqual(s.Sign(gatewayOrderID, paymentID), signature)
}

func hmacHex(key, message []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func constantTimeEqual(expected, given string) bool {
	return hmac.Equal([]byte(expected), []byte(given))
}
