package api

import (
	"net/http"

	"medstore/internal/models"
	"medstore/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) registerEngagementRoutes(api *gin.RouterGroup) {
	admin := h.admin()

	reviews := api.Group("/reviews")
	{
		reviews.GET("/:productId", h.listReviews)
		reviews.GET("/:productId/stats", h.reviewStats)
		reviews.POST("", h.authenticate, requireVerified, h.addReview)
	}

	wishlist := api.Group("/wishlist", h.authenticate, requireVerified)
	{
		wishlist.GET("", h.listWishlist)
		wishlist.POST("", h.addToWishlist)
		wishlist.GET("/check/:productId", h.checkWishlist)
		wishlist.DELETE("/:productId", h.removeFromWishlist)
	}

	complaints := api.Group("/complaints")
	{
		complaints.POST("", h.optionalAuth, h.submitComplaint)
		complaints.GET("", append(admin, h.listComplaints)...)
		complaints.PUT("/:id", append(admin, h.updateComplaint)...)
		complaints.DELETE("/:id", append(admin, h.deleteComplaint)...)
	}
}

func (h *Handler) listReviews(c *gin.Context) {
	reviews, err := h.reviews.ListReviews(c.Request.Context(), c.Param("productId"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, reviews)
}

func (h *Handler) reviewStats(c *gin.Context) {
	stats, err := h.reviews.Stats(c.Request.Context(), c.Param("productId"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (h *Handler) addReview(c *gin.Context) {
	var req service.ReviewInput
	if !bind(c, &req) {
		return
	}

	review, err := h.reviews.AddReview(c.Request.Context(), principal(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, review)
}

func (h *Handler) listWishlist(c *gin.Context) {
	items, err := h.wishlist.List(c.Request.Context(), principal(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}

func (h *Handler) addToWishlist(c *gin.Context) {
	var req struct {
		ProductID string `json:"product_id" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	if err := h.wishlist.Add(c.Request.Context(), principal(c).ID, req.ProductID); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"product_id": req.ProductID})
}

func (h *Handler) checkWishlist(c *gin.Context) {
	productID := c.Param("productId")
	in, err := h.wishlist.Contains(c.Request.Context(), principal(c).ID, productID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"product_id": productID, "in_wishlist": in})
}

func (h *Handler) removeFromWishlist(c *gin.Context) {
	if err := h.wishlist.Remove(c.Request.Context(), principal(c).ID, c.Param("productId")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Removed from wishlist"})
}

func (h *Handler) submitComplaint(c *gin.Context) {
	var req service.ComplaintInput
	if !bind(c, &req) {
		return
	}

	complaint, err := h.complaints.Submit(c.Request.Context(), principal(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, complaint)
}

func (h *Handler) listComplaints(c *gin.Context) {
	complaints, err := h.complaints.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, complaints)
}

func (h *Handler) updateComplaint(c *gin.Context) {
	var req struct {
		Status models.ComplaintStatus `json:"status" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	complaint, err := h.complaints.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, complaint)
}

func (h *Handler) deleteComplaint(c *gin.Context) {
	if err := h.complaints.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Complaint removed"})
}
