package api

import (
	"fmt"
	"net/http"

	"medstore/internal/models"
	"medstore/internal/service"
	"medstore/internal/upload"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) registerCatalogRoutes(api *gin.RouterGroup) {
	admin := h.admin()

	categories := api.Group("/categories")
	{
		categories.GET("", h.listCategories)
		categories.POST("", append(admin, h.createCategory)...)
		categories.PUT("/:id", append(admin, h.updateCategory)...)
		categories.DELETE("/:id", append(admin, h.deleteCategory)...)
	}

	products := api.Group("/products")
	{
		products.GET("", h.listProducts)
		products.GET("/admin/all", append(admin, h.listAllProducts)...)
		products.GET("/:id", h.optionalAuth, h.getProduct)
		products.POST("", append(admin, h.createProduct)...)
		products.PUT("/:id", append(admin, h.updateProduct)...)
		products.DELETE("/:id", append(admin, h.deleteProduct)...)
	}

	uploadChain := append(h.admin(), h.rateLimit("upload", h.limits.Upload), h.uploadImage)
	api.POST("/upload", uploadChain...)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, categories)
}

func (h *Handler) createCategory(c *gin.Context) {
	var req service.CategoryInput
	if !bind(c, &req) {
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, category)
}

func (h *Handler) updateCategory(c *gin.Context) {
	var req service.CategoryInput
	if !bind(c, &req) {
		return
	}

	category, err := h.catalog.UpdateCategory(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, category)
}

func (h *Handler) deleteCategory(c *gin.Context) {
	if err := h.catalog.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Category removed"})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context(), models.ProductFilter{
		CategoryID: c.Query("category"),
		Search:     c.Query("search"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, products)
}

func (h *Handler) listAllProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context(), models.ProductFilter{
		CategoryID:      c.Query("category"),
		Search:          c.Query("search"),
		IncludeInactive: true,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	p := principal(c)
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"), p != nil && p.IsAdmin)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductInput
	if !bind(c, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req service.ProductUpdate
	if !bind(c, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Product removed"})
}

// uploadImage stores a product image and returns its public URL
func (h *Handler) uploadImage(c *gin.Context) {
	f, ok := h.saveUpload(c, "image", upload.ProductImage)
	if !ok {
		return
	}

	h.logger.Info("Product image uploaded", zap.String("file", f.Name), zap.Int64("size", f.Size))
	respond(c, http.StatusCreated, f)
}

// saveUpload reads a multipart field and stores it as kind
func (h *Handler) saveUpload(c *gin.Context, field string, kind upload.Kind) (*upload.File, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, upload.MaxFileSize+1<<20)

	header, err := c.FormFile(field)
	if err != nil {
		fail(c, fmt.Errorf("%w: %s file is required (max %d MB)", models.ErrInvalidInput, field, upload.MaxFileSize>>20))
		return nil, false
	}
	if header.Size > upload.MaxFileSize {
		fail(c, fmt.Errorf("%w: file exceeds %d MB", models.ErrInvalidInput, upload.MaxFileSize>>20))
		return nil, false
	}

	src, err := header.Open()
	if err != nil {
		fail(c, fmt.Errorf("failed to open upload: %w", err))
		return nil, false
	}
	defer src.Close()

	f, err := h.uploads.Save(kind, src)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return f, true
}
