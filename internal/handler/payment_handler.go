package handler

import (
	"context"
	"net/http"

	"racketoutlet-be/internal/payment"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	payments payment.Service
}

func NewPaymentHandler(payments payment.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	res, err := h.payments.CreateGatewayOrder(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	p, err := h.payments.GetPayment(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var in payment.VerifyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.payments.VerifyPayment(c.Request.Context(), currentUser(c), orderID, in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) ConfirmCOD(c *gin.Context) {
	h.transition(c, h.payments.ConfirmCOD)
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	h.transition(c, h.payments.CancelPayment)
}

func (h *PaymentHandler) FailPayment(c *gin.Context) {
	h.transition(c, h.payments.FailPayment)
}

type transitionFunc func(ctx context.Context, userID, orderID uint) (*payment.Confirmation, error)

func (h *PaymentHandler) transition(c *gin.Context, fn transitionFunc) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	res, err := fn(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
