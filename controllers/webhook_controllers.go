package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/storefront-checkout/services"
	"github.com/yeremiapane/storefront-checkout/utils"
)

// maxWebhookBody bounds the webhook request body.
const maxWebhookBody = 1 << 20

type WebhookController struct {
	webhooks *services.WebhookService
}

func NewWebhookController(webhooks *services.WebhookService) *WebhookController {
	return &WebhookController{webhooks: webhooks}
}

// HandleRazorpayWebhook handles POST /webhooks/razorpay. The signature covers
// the raw body, so it is read before any decoding.
func (wc *WebhookController) HandleRazorpayWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	eventID := c.GetHeader("X-Razorpay-Event-Id")
	result, err := wc.webhooks.HandleWebhook(
		c.Request.Context(),
		body,
		c.GetHeader("X-Razorpay-Signature"),
		eventID,
	)
	if err != nil {
		respondServiceError(c, err, logrus.Fields{"event_id": eventID})
		return
	}

	utils.RespondJSON(c, http.StatusOK, gin.H{
		"event":   result.Event,
		"stored":  result.Stored,
		"ignored": result.Ignored,
	})
}
