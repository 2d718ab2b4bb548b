package auth

import (
	"net/http"
	"strings"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/common/logger"

	"github.com/gin-gonic/gin"
)

const claimsKey = "auth.claims"

type Handler struct {
	service *Service
	errors  *apperrors.ErrorHandler
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, errors: apperrors.NewErrorHandler(log)}
}

// Mount registers the /auth routes on r.
func (h *Handler) Mount(r gin.IRouter) {
	g := r.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/verify-email", h.VerifyEmail)
	g.POST("/resend-verification", h.ResendVerification)
	g.POST("/forgot-password", h.ForgotPassword)
	g.POST("/reset-password", h.ResetPassword)

	private := g.Group("", h.RequireAuth())
	private.GET("/me", h.Me)
	private.POST("/change-password", h.ChangePassword)
	private.POST("/logout", h.Logout)
}

// RequireAuth accepts a live access token in the Authorization header.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c.GetHeader("Authorization"))
		if raw == "" {
			h.fail(c, "authenticate", apperrors.NewInvalidTokenError("missing bearer token"))
			return
		}
		claims, err := h.service.Authenticate(c.Request.Context(), raw, tokenTypeAccess)
		if err != nil {
			h.fail(c, "authenticate", err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !h.bind(c, "register", &req) {
		return
	}
	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.bind(c, "login", &req) {
		return
	}
	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !h.bind(c, "refresh", &req) {
		return
	}
	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *Handler) VerifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if !h.bind(c, "verify email", &req) {
		return
	}
	user, err := h.service.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		h.fail(c, "verify email", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.bind(c, "resend verification", &req) {
		return
	}
	if err := h.service.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.fail(c, "resend verification", err)
		return
	}
	ok(c, "If the account exists and is unverified, a new verification email has been sent")
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.bind(c, "forgot password", &req) {
		return
	}
	if err := h.service.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.fail(c, "forgot password", err)
		return
	}
	ok(c, "If the email exists, a password reset link has been sent")
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !h.bind(c, "reset password", &req) {
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.fail(c, "reset password", err)
		return
	}
	ok(c, "Password has been reset")
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.service.Profile(c.Request.Context(), claimsFrom(c).Subject)
	if err != nil {
		h.fail(c, "profile", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !h.bind(c, "change password", &req) {
		return
	}
	err := h.service.ChangePassword(c.Request.Context(), claimsFrom(c).Subject, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.fail(c, "change password", err)
		return
	}
	ok(c, "Password changed")
}

func (h *Handler) Logout(c *gin.Context) {
	raw := bearer(c.GetHeader("Authorization"))
	if err := h.service.Logout(c.Request.Context(), raw); err != nil {
		h.fail(c, "logout", err)
		return
	}
	ok(c, "Logged out")
}

func (h *Handler) bind(c *gin.Context, op string, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, op, apperrors.NewValidationError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	status, body := h.errors.Resolve(op, err)
	c.AbortWithStatusJSON(status, body)
}

func ok(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

func claimsFrom(c *gin.Context) *Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*Claims)
	if claims == nil {
		return &Claims{}
	}
	return claims
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
