package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medstore/config"
	"medstore/internal/models"
	"medstore/internal/payment"
	"medstore/internal/redisclient"
	"medstore/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalKey = "principal"

// PrincipalResolver turns a bearer token into the caller it was issued to
type PrincipalResolver func(ctx context.Context, token string) (*models.Principal, error)

// RateLimiter counts requests against a fixed window
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (redisclient.Quota, error)
}

// fail records err for the error middleware and stops the chain
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// bind decodes the JSON body into req, recording a 400 on failure
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, err.Error()))
		return false
	}
	return true
}

func principal(c *gin.Context) *models.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Principal)
	return p
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// authenticate requires a valid bearer token
func (h *Handler) authenticate(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		fail(c, fmt.Errorf("%w: no token", models.ErrUnauthorized))
		return
	}

	p, err := h.resolve(c.Request.Context(), token)
	if err != nil {
		fail(c, err)
		return
	}

	c.Set(principalKey, p)
	c.Next()
}

// optionalAuth attaches the caller when a token is present. Guests pass
// through, a bad token does not.
func (h *Handler) optionalAuth(c *gin.Context) {
	if bearerToken(c) == "" {
		c.Next()
		return
	}
	h.authenticate(c)
}

// requireVerified blocks customers who have not confirmed their email
func requireVerified(c *gin.Context) {
	if p := principal(c); p != nil && !p.IsVerified {
		fail(c, fmt.Errorf("%w: verify your email to continue", models.ErrUnverified))
		return
	}
	c.Next()
}

func adminOnly(c *gin.Context) {
	p := principal(c)
	if p == nil || !p.IsAdmin {
		fail(c, fmt.Errorf("%w: admin only", models.ErrForbidden))
		return
	}
	c.Next()
}

// rateLimit applies a per-IP fixed window. Redis trouble lets the request
// through.
func (h *Handler) rateLimit(name string, rl config.RateLimit) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil || rl.Limit <= 0 {
			c.Next()
			return
		}

		key := name + ":" + c.ClientIP()
		quota, err := h.limiter.Allow(c.Request.Context(), key, rl.Limit, rl.Window)
		if err != nil {
			h.logger.Warn("Rate limiter unavailable, allowing request", zap.String("limiter", name), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(quota.Remaining))
		if !quota.Allowed {
			util.RateLimitedTotal.WithLabelValues(name).Inc()
			c.Header("Retry-After", strconv.Itoa(int(quota.RetryAfter.Seconds()+0.5)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}

// errorHandler renders the last error recorded by a handler
func (h *Handler) errorHandler(c *gin.Context) {
	c.Next()

	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}

	err := c.Errors.Last().Err
	status, msg := h.classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(status, gin.H{"success": false, "error": msg})
}

func (h *Handler) classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrInvalidSignature):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, "Not authorized"
	case errors.Is(err, models.ErrUnverified):
		return http.StatusForbidden, "Please verify your email address"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, errPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, payment.ErrNotConfigured):
		return http.StatusServiceUnavailable, "Card payments are not available"
	}

	if h.production {
		return http.StatusInternalServerError, "Internal server error"
	}
	return http.StatusInternalServerError, err.Error()
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
