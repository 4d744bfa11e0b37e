package api

import (
	"context"
	"net/http"
	"time"

	"medstore/config"
	"medstore/internal/service"
	"medstore/internal/upload"
	"medstore/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies wires the services behind the HTTP API
type Dependencies struct {
	Auth       *service.AuthService
	Catalog    *service.CatalogService
	Orders     *service.OrderService
	Payments   *service.PaymentService
	Cards      *service.CardPaymentService
	Reviews    *service.ReviewService
	Wishlist   *service.WishlistService
	Complaints *service.ComplaintService

	Uploads  *upload.Store
	Realtime http.Handler
	Limiter  RateLimiter

	// Resolve defaults to Auth.ResolvePrincipal
	Resolve PrincipalResolver

	// Checks are run by the readiness probe
	Checks map[string]func(ctx context.Context) error

	Limits     config.RateLimitConfig
	Production bool
}

// Handler contains HTTP handlers
type Handler struct {
	auth       *service.AuthService
	catalog    *service.CatalogService
	orders     *service.OrderService
	payments   *service.PaymentService
	cards      *service.CardPaymentService
	reviews    *service.ReviewService
	wishlist   *service.WishlistService
	complaints *service.ComplaintService

	uploads    *upload.Store
	realtime   http.Handler
	limiter    RateLimiter
	resolve    PrincipalResolver
	checks     map[string]func(ctx context.Context) error
	limits     config.RateLimitConfig
	production bool
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	resolve := deps.Resolve
	if resolve == nil && deps.Auth != nil {
		resolve = deps.Auth.ResolvePrincipal
	}

	return &Handler{
		auth:       deps.Auth,
		catalog:    deps.Catalog,
		orders:     deps.Orders,
		payments:   deps.Payments,
		cards:      deps.Cards,
		reviews:    deps.Reviews,
		wishlist:   deps.Wishlist,
		complaints: deps.Complaints,
		uploads:    deps.Uploads,
		realtime:   deps.Realtime,
		limiter:    deps.Limiter,
		resolve:    resolve,
		checks:     deps.Checks,
		limits:     deps.Limits,
		production: deps.Production,
		logger:     util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.errorHandler)

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.uploads != nil {
		router.Static("/uploads", h.uploads.Root())
	}
	if h.realtime != nil {
		router.GET("/ws", gin.WrapH(h.realtime))
	}

	// outside the /api group so the per-IP limit does not apply
	router.POST("/api/payments/webhook", h.paymentWebhook)

	api := router.Group("/api", h.rateLimit("api", h.limits.API))

	h.registerAuthRoutes(api)
	h.registerCatalogRoutes(api)
	h.registerOrderRoutes(api)
	h.registerPaymentRoutes(api)
	h.registerEngagementRoutes(api)
}

// admin returns the middleware chain of an admin-only route
func (h *Handler) admin() []gin.HandlerFunc {
	return []gin.HandlerFunc{h.authenticate, adminOnly, h.rateLimit("admin", h.limits.Admin)}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports whether every backing service answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			failing[name] = err.Error()
		}
	}

	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failing,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
