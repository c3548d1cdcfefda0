package handler

import (
	"errors"
	"net/http"

	"racketoutlet-be/internal/cart"
	"racketoutlet-be/internal/inventory"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/payment"
	"racketoutlet-be/internal/utils"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{cart.ErrEmptyItems, http.StatusBadRequest, "empty_items"},
	{cart.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{cart.ErrProductNotFound, http.StatusBadRequest, "product_not_found"},
	{inventory.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
	{cart.ErrCartItemNotFound, http.StatusNotFound, "cart_item_not_found"},
	{cart.ErrCartItemAlreadyExist, http.StatusConflict, "cart_item_exists"},

	{order.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{order.ErrInvalidTransition, http.StatusBadRequest, "invalid_transition"},
	{order.ErrUnknownStatus, http.StatusBadRequest, "invalid_status"},
	{order.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
	{order.ErrMissingAddress, http.StatusBadRequest, "missing_address"},

	{payment.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{payment.ErrNotCOD, http.StatusBadRequest, "not_cod"},
	{payment.ErrAlreadyConfirmed, http.StatusBadRequest, "already_confirmed"},
	{payment.ErrSignatureVerificationFailed, http.StatusBadRequest, "signature_verification_failed"},
	{payment.ErrPaymentInProgress, http.StatusConflict, "payment_in_progress"},
	{payment.ErrGatewayTimeout, http.StatusGatewayTimeout, "gateway_timeout"},
	{payment.ErrGateway, http.StatusBadGateway, "gateway_error"},
}

// writeError maps a service error to its status and stable code. Anything
// unmapped is a 500 with a generic message and is reported to Sentry.
func writeError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		detail := utils.ErrorDetail{Code: m.code, Message: m.target.Error()}
		attachProduct(err, &detail)
		c.AbortWithStatusJSON(m.status, utils.ErrorResponse{Error: detail})
		return
	}

	logger.FromCtx(c.Request.Context()).Error("unhandled request error",
		zap.String("layer", "handler"),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	}
	utils.WriteJSONError(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

// attachProduct copies the offending product onto the error body.
func attachProduct(err error, d *utils.ErrorDetail) {
	var (
		stockErr *inventory.InsufficientStockError
		qtyErr   *cart.InvalidQuantityError
		nfErr    *cart.ProductNotFoundError
	)
	switch {
	case errors.As(err, &stockErr):
		d.ProductID, d.ProductName = &stockErr.ProductID, stockErr.ProductName
		d.Message = stockErr.Error()
	case errors.As(err, &qtyErr):
		d.ProductID, d.ProductName = &qtyErr.ProductID, qtyErr.ProductName
		d.Message = qtyErr.Error()
	case errors.As(err, &nfErr):
		d.ProductID = &nfErr.ProductID
		d.Message = nfErr.Error()
	}
}

func badRequest(c *gin.Context, message string) {
	utils.WriteJSONError(c, http.StatusBadRequest, "invalid_request", message)
}
