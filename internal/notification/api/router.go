// Package api exposes the notification service over HTTP with gin.
package api

import (
	"context"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/models"
	"notification-platform/internal/notification/dispatch"
	"notification-platform/internal/notification/records"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type EmailSender interface {
	Send(ctx context.Context, req dispatch.EmailRequest) (dispatch.DeliveryResult, error)
	SendBulk(ctx context.Context, reqs []dispatch.EmailRequest, batchSize int) dispatch.BulkResult
}

type SMSSender interface {
	Send(ctx context.Context, req dispatch.SMSRequest) (dispatch.DeliveryResult, error)
	SendBulk(ctx context.Context, reqs []dispatch.SMSRequest, batchSize int) dispatch.BulkResult
}

type Notifier interface {
	Create(ctx context.Context, req dispatch.CreateNotificationRequest) (dispatch.DeliveryResult, error)
	History(ctx context.Context, q records.HistoryQuery) (*dispatch.History, error)
	Health(ctx context.Context) dispatch.HealthStatus
}

type TemplateStore interface {
	Create(ctx context.Context, t models.Template) (*models.Template, error)
	Get(ctx context.Context, name string) (*models.Template, bool, error)
	List(ctx context.Context, channel models.Channel) ([]models.Template, error)
	Update(ctx context.Context, name string, patch models.TemplatePatch) (*models.Template, error)
	Deactivate(ctx context.Context, name string) (bool, error)
}

// Dependencies is everything the router serves. Database and Consumer feed
// the health endpoints and may be nil.
type Dependencies struct {
	ServiceName   string
	Email         EmailSender
	SMS           SMSSender
	Notifications Notifier
	Templates     TemplateStore
	Database      StateReporter
	Consumer      func() string
	Logger        logger.Logger
}

type Handler struct {
	deps   Dependencies
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

// NewRouter builds the gin engine with every notification route mounted.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.ServiceName == "" {
		deps.ServiceName = "notification-service"
	}
	h := &Handler{
		deps:   deps,
		errors: apperrors.NewErrorHandler(deps.Logger),
		logger: deps.Logger,
	}

	router := gin.New()
	router.Use(Recovery(deps.Logger), RequestLogger(deps.Logger))

	router.GET("/health", h.Health)
	router.GET("/health/ready", h.Ready)
	router.GET("/health/live", h.Live)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	n := router.Group("/notifications")
	{
		n.POST("", h.CreateNotification)
		n.POST("/email/send", h.SendEmail)
		n.POST("/email/bulk", h.SendBulkEmail)
		n.POST("/sms/send", h.SendSMS)
		n.POST("/sms/bulk", h.SendBulkSMS)
		n.GET("/history", h.History)

		n.POST("/templates", h.CreateTemplate)
		n.GET("/templates", h.ListTemplates)
		n.GET("/templates/:name", h.GetTemplate)
		n.PUT("/templates/:name", h.UpdateTemplate)
		n.DELETE("/templates/:name", h.DeleteTemplate)
	}
	return router
}

// fail writes err through the shared error handler.
func (h *Handler) fail(c *gin.Context, operation string, err error) {
	status, body := h.errors.Resolve(operation, err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(err error) error {
	return apperrors.NewValidationError("invalid request body: " + err.Error())
}
