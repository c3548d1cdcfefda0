package handler

import (
	"net/http"

	"racketoutlet-be/internal/cart"
	"racketoutlet-be/internal/utils"

	"github.com/gin-gonic/gin"
)

type CartHandler struct {
	carts cart.Service
}

func NewCartHandler(carts cart.Service) *CartHandler {
	return &CartHandler{carts: carts}
}

type addToCartRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

func (h *CartHandler) GetCart(c *gin.Context) {
	ct, err := h.carts.GetCart(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if ct.Items == nil {
		ct.Items = []cart.CartItem{}
	}

	c.JSON(http.StatusOK, ct)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	line, err := h.carts.AddToCart(c.Request.Context(), cart.AddToCartParams{
		UserID:    currentUser(c),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, line)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, err := utils.ParseID(c.Param("product_id"))
	if err != nil || productID == 0 {
		badRequest(c, "invalid product id")
		return
	}

	if err := h.carts.RemoveFromCart(c.Request.Context(), currentUser(c), productID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
