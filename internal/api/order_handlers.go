package api

import (
	"net/http"
	"strconv"

	"medstore/internal/models"
	"medstore/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) registerOrderRoutes(api *gin.RouterGroup) {
	admin := h.admin()

	orders := api.Group("/orders")
	{
		orders.POST("", h.optionalAuth, requireVerified, h.createOrder)
		orders.GET("", append(admin, h.listOrders)...)
		orders.GET("/stats", append(admin, h.dashboardStats)...)
		orders.GET("/myorders", h.authenticate, requireVerified, h.myOrders)
		orders.GET("/:id", h.optionalAuth, requireVerified, h.getOrder)
		orders.GET("/:id/status", h.optionalAuth, requireVerified, h.getOrderStatus)
		orders.PUT("/:id/status", append(admin, h.updateOrderStatus)...)
	}
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bind(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), &req, principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) getOrderStatus(c *gin.Context) {
	status, err := h.orders.GetOrderStatus(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, status)
}

func (h *Handler) myOrders(c *gin.Context) {
	orders, err := h.orders.ListMyOrders(c.Request.Context(), principal(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, orders)
}

func (h *Handler) listOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	orders, err := h.orders.ListOrders(c.Request.Context(), models.OrderFilter{
		OrderStatus:   models.OrderStatus(c.Query("status")),
		PaymentStatus: models.PaymentStatus(c.Query("payment_status")),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, orders)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req struct {
		Status models.OrderStatus `json:"status" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) dashboardStats(c *gin.Context) {
	stats, err := h.orders.DashboardStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}
