package api

import (
	"net/http"

	"medstore/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) registerAuthRoutes(api *gin.RouterGroup) {
	authLimit := h.rateLimit("auth", h.limits.Auth)
	resetLimit := h.rateLimit("password_reset", h.limits.PasswordReset)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authLimit, h.register)
		auth.POST("/login", authLimit, h.login)
		auth.POST("/admin/login", authLimit, h.adminLogin)
		auth.POST("/verify", authLimit, h.verifyEmail)
		auth.POST("/resend-verification", authLimit, h.optionalAuth, h.resendVerification)
		auth.POST("/security-question", resetLimit, h.securityQuestion)
		auth.POST("/forgot-password", resetLimit, h.forgotPassword)
		auth.POST("/reset-password/:token", resetLimit, h.resetPassword)

		auth.GET("/me", h.authenticate, h.me)
		auth.PUT("/profile", h.authenticate, requireVerified, h.updateProfile)
		auth.PUT("/password", h.authenticate, requireVerified, h.changePassword)
	}

	users := api.Group("/users", h.admin()...)
	{
		users.GET("", h.listUsers)
		users.DELETE("/:id", h.deleteUser)
		users.PUT("/:id/status", h.setAccountStatus)
	}
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.auth.Register(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusCreated, gin.H{
		"user":    res.User,
		"message": "Registration successful. Check your email to verify your account.",
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentials
	if !bind(c, &req) {
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req credentials
	if !bind(c, &req) {
		return
	}

	res, err := h.auth.AdminLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

func (h *Handler) verifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	if err := h.auth.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Email verified"})
}

// resendVerification answers identically whether or not the account exists
func (h *Handler) resendVerification(c *gin.Context) {
	var req emailRequest
	_ = c.ShouldBindJSON(&req)
	if req.Email == "" {
		if p := principal(c); p != nil {
			req.Email = p.Email
		}
	}

	if req.Email != "" {
		if err := h.auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
			fail(c, err)
			return
		}
	}
	respond(c, http.StatusOK, gin.H{"message": "If the account exists and is unverified, a new link has been sent"})
}

func (h *Handler) securityQuestion(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}

	question, err := h.auth.SecurityQuestion(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"security_question": question})
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var req struct {
		Email          string `json:"email" binding:"required"`
		SecurityAnswer string `json:"security_answer" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	token, err := h.auth.ForgotPassword(c.Request.Context(), req.Email, req.SecurityAnswer)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"reset_token": token})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Password has been reset"})
}

func (h *Handler) me(c *gin.Context) {
	account, err := h.auth.Me(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, account)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req service.ProfileUpdate
	if !bind(c, &req) {
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), principal(c).ID, req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, user)
}

func (h *Handler) changePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), principal(c).ID, req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Password updated"})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.auth.ListUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, users)
}

func (h *Handler) deleteUser(c *gin.Context) {
	if err := h.auth.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "User removed"})
}

func (h *Handler) setAccountStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	user, err := h.auth.SetAccountStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, user)
}
