package handler

import (
	"net/http"
	"strconv"

	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/utils"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orders order.Service
}

func NewOrderHandler(orders order.Service) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type createOrderRequest struct {
	Items                []orderItemRequest `json:"items"`
	ShippingAddress      string             `json:"shipping_address"`
	ShippingPersonName   string             `json:"shipping_person_name"`
	ShippingPersonNumber string             `json:"shipping_person_number"`
	BillingAddress       string             `json:"billing_address"`
	PaymentMethod        string             `json:"payment_method" binding:"required"`
	Notes                *string            `json:"notes"`
}

type orderItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

type advanceStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// currentUser is only called behind RequireAuth.
func currentUser(c *gin.Context) uint {
	id, _ := utils.GetUserIDFromContext(c.Request.Context())
	return id
}

func orderIDParam(c *gin.Context) (uint, bool) {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil || id == 0 {
		badRequest(c, "invalid order id")
		return 0, false
	}
	return id, true
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	items := make([]order.RequestedItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.RequestedItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	o, err := h.orders.CreateOrder(c.Request.Context(), order.CreateOrderInput{
		UserID:               currentUser(c),
		Items:                items,
		ShippingAddress:      req.ShippingAddress,
		ShippingPersonName:   req.ShippingPersonName,
		ShippingPersonNumber: req.ShippingPersonNumber,
		BillingAddress:       req.BillingAddress,
		PaymentMethod:        req.PaymentMethod,
		Notes:                req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, o)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	input := order.ListOrdersInput{
		UserID:  currentUser(c),
		IsAdmin: utils.IsAdmin(c.Request.Context()),
	}
	input.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	input.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))

	if raw := c.Query("status"); raw != "" {
		status, err := order.ParseStatus(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		input.Status = &status
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "page": input.Page, "limit": input.Limit})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	o, err := h.orders.GetOrder(c.Request.Context(), currentUser(c), orderID, utils.IsAdmin(c.Request.Context()))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, o)
}

// AdvanceStatus is the operator path for fulfilment statuses. Admin only.
func (h *OrderHandler) AdvanceStatus(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req advanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	o, err := h.orders.AdvanceFulfilment(c.Request.Context(), orderID, to)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, o)
}
