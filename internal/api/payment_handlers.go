package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"medstore/internal/models"
	"medstore/internal/service"
	"medstore/internal/upload"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 512 << 10

var errPayloadTooLarge = errors.New("payload too large")

func (h *Handler) registerPaymentRoutes(api *gin.RouterGroup) {
	admin := h.admin()

	manual := api.Group("/manual-payments")
	{
		manual.GET("/bank-details", h.bankDetails)
		manual.POST("/upload-proof/:orderId", h.optionalAuth, requireVerified, h.rateLimit("upload", h.limits.Upload), h.uploadProof)
		manual.GET("/proof/:orderId", h.optionalAuth, requireVerified, h.getProof)
		manual.GET("/whatsapp-link/:orderId", h.optionalAuth, requireVerified, h.whatsAppLink)
		manual.POST("/whatsapp-confirm/:orderId", h.optionalAuth, requireVerified, h.confirmWhatsApp)
		manual.PUT("/verify/:orderId", append(admin, h.verifyPayment)...)
		manual.PUT("/refund/:orderId", append(admin, h.refundPayment)...)
	}

	cards := api.Group("/payments")
	{
		cards.GET("/config", h.cardConfig)
		cards.POST("/create-payment-intent", h.optionalAuth, requireVerified, h.createPaymentIntent)
		cards.GET("/status/:orderId", h.optionalAuth, requireVerified, h.cardPaymentStatus)
	}
}

func (h *Handler) bankDetails(c *gin.Context) {
	respond(c, http.StatusOK, h.payments.BankDetails())
}

// uploadProof stores the transfer screenshot before attaching it to the
// order. The new file is removed when the order refuses it, the replaced one
// once the order points at the new file.
func (h *Handler) uploadProof(c *gin.Context) {
	f, ok := h.saveUpload(c, "paymentProof", upload.PaymentProof)
	if !ok {
		return
	}

	order, replaced, err := h.payments.UploadProof(c.Request.Context(), c.Param("orderId"), principal(c), service.ProofUpload{
		Filename:      f.Name,
		URL:           f.URL,
		TransactionID: c.PostForm("transactionId"),
	})
	if err != nil {
		if rmErr := h.uploads.Remove(f); rmErr != nil {
			h.logger.Warn("Failed to remove rejected proof", zap.String("file", f.Name), zap.Error(rmErr))
		}
		fail(c, err)
		return
	}
	if replaced != "" {
		if rmErr := h.uploads.RemoveByName(upload.PaymentProof, replaced); rmErr != nil {
			h.logger.Warn("Failed to remove replaced proof", zap.String("file", replaced), zap.Error(rmErr))
		}
	}

	respond(c, http.StatusOK, gin.H{
		"order":   order,
		"message": "Payment proof uploaded. We will verify it shortly.",
	})
}

func (h *Handler) getProof(c *gin.Context) {
	proof, err := h.payments.GetProof(c.Request.Context(), c.Param("orderId"), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, proof)
}

func (h *Handler) whatsAppLink(c *gin.Context) {
	link, err := h.payments.WhatsAppLink(c.Request.Context(), c.Param("orderId"), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, link)
}

func (h *Handler) confirmWhatsApp(c *gin.Context) {
	order, err := h.payments.ConfirmWhatsApp(c.Request.Context(), c.Param("orderId"), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req struct {
		Approved *bool  `json:"approved" binding:"required"`
		Notes    string `json:"admin_notes"`
	}
	if !bind(c, &req) {
		return
	}

	order, err := h.payments.VerifyPayment(c.Request.Context(), c.Param("orderId"), principal(c), *req.Approved, req.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) refundPayment(c *gin.Context) {
	var req struct {
		Notes string `json:"admin_notes"`
	}
	_ = c.ShouldBindJSON(&req)

	order, err := h.payments.Refund(c.Request.Context(), c.Param("orderId"), req.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) cardConfig(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"publishable_key": h.cards.PublishableKey()})
}

func (h *Handler) createPaymentIntent(c *gin.Context) {
	var req struct {
		OrderID string `json:"order_id" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	intent, err := h.cards.CreatePaymentIntent(c.Request.Context(), req.OrderID, principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, intent)
}

func (h *Handler) cardPaymentStatus(c *gin.Context) {
	status, err := h.cards.Status(c.Request.Context(), c.Param("orderId"), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, status)
}

// paymentWebhook verifies the signature over the exact bytes received
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		fail(c, fmt.Errorf("%w: unreadable body", models.ErrInvalidInput))
		return
	}
	if len(payload) > maxWebhookBody {
		h.logger.Warn("Webhook payload too large",
			zap.Int("limit_bytes", maxWebhookBody),
			zap.Int64("content_length", c.Request.ContentLength))
		fail(c, fmt.Errorf("%w: webhook body exceeds %d bytes", errPayloadTooLarge, maxWebhookBody))
		return
	}

	if err := h.cards.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
