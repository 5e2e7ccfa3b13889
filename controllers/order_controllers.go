package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/storefront-checkout/middlewares"
	"github.com/yeremiapane/storefront-checkout/services"
	"github.com/yeremiapane/storefront-checkout/utils"
)

type OrderController struct {
	orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{orders: orders}
}

// ListMyOrders handles GET /orders for the signed-in customer.
func (oc *OrderController) ListMyOrders(c *gin.Context) {
	userID := c.GetString(middlewares.ContextUserID)

	orders, err := oc.orders.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, logrus.Fields{"user_id": userID})
		return
	}

	utils.RespondJSON(c, http.StatusOK, gin.H{"orders": orders})
}

// GetOrder handles GET /orders/:order_number. Orders of other users are
// reported as missing.
func (oc *OrderController) GetOrder(c *gin.Context) {
	userID := c.GetString(middlewares.ContextUserID)
	orderNumber := c.Param("order_number")

	order, err := oc.orders.GetOrderByNumber(c.Request.Context(), orderNumber)
	if errors.Is(err, services.ErrOrderNotFound) || (err == nil && !order.IsOwnedBy(userID)) {
		utils.RespondError(c, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		respondServiceError(c, err, logrus.Fields{"order_number": orderNumber})
		return
	}

	utils.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}
