package webhook

import (
	"errors"
	"io"
	"net/http"

	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/payment"
	"racketoutlet-be/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"

	// gateway payloads are small; anything larger is not ours
	maxBodyBytes = 1 << 20
)

// Handler receives gateway callbacks. It is mounted without authentication;
// the HMAC signature is the only trust anchor.
type Handler struct {
	PaymentSvc payment.Service
}

func NewWebhookHandler(paymentSvc payment.Service) *Handler {
	return &Handler{PaymentSvc: paymentSvc}
}

// PaymentWebhookHandler answers 200 for everything the gateway should not
// retry, including duplicates and events it cannot apply.
func (h *Handler) PaymentWebhookHandler(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromCtx(ctx).With(zap.String("layer", "webhook"))

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		utils.WriteJSONError(c, http.StatusBadRequest, "invalid_payload", "failed to read body")
		return
	}

	result, err := h.PaymentSvc.HandleWebhookEvent(ctx, payment.WebhookDelivery{
		Body:      body,
		Signature: c.GetHeader(signatureHeader),
		EventID:   c.GetHeader(eventIDHeader),
	})

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": result})
	case errors.Is(err, payment.ErrInvalidWebhookSignature):
		utils.WriteJSONError(c, http.StatusUnauthorized, "invalid_signature", "invalid webhook signature")
	case errors.Is(err, payment.ErrInvalidWebhookPayload):
		utils.WriteJSONError(c, http.StatusBadRequest, "invalid_payload", "invalid webhook payload")
	case errors.Is(err, payment.ErrPaymentNotFound), errors.Is(err, order.ErrOrderNotFound):
		// the gateway retries until the payment exists
		utils.WriteJSONError(c, http.StatusNotFound, "payment_not_found", "payment not found")
	default:
		log.Error("webhook failed", zap.Error(err))
		utils.WriteJSONError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
