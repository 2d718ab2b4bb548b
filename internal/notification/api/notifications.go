package api

import (
	"net/http"
	"strconv"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/models"
	"notification-platform/internal/notification/dispatch"
	"notification-platform/internal/notification/records"

	"github.com/gin-gonic/gin"
)

type BulkEmailRequest struct {
	Emails    []dispatch.EmailRequest `json:"emails"`
	BatchSize int                     `json:"batchSize,omitempty"`
}

type BulkSMSRequest struct {
	Messages  []dispatch.SMSRequest `json:"messages"`
	BatchSize int                   `json:"batchSize,omitempty"`
}

// respondSend writes a single-send result. A provider failure is still a
// handled request: 200 with success=false.
func (h *Handler) respondSend(c *gin.Context, operation string, okStatus int, res dispatch.DeliveryResult, err error) {
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeProviderError) {
		h.fail(c, operation, err)
		return
	}
	status := okStatus
	if !res.Success {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) CreateNotification(c *gin.Context) {
	var req dispatch.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "create notification", badRequest(err))
		return
	}
	res, err := h.deps.Notifications.Create(c.Request.Context(), req)
	h.respondSend(c, "create notification", http.StatusCreated, res, err)
}

func (h *Handler) SendEmail(c *gin.Context) {
	var req dispatch.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "send email", badRequest(err))
		return
	}
	res, err := h.deps.Email.Send(c.Request.Context(), req)
	h.respondSend(c, "send email", http.StatusOK, res, err)
}

func (h *Handler) SendBulkEmail(c *gin.Context) {
	var req BulkEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "send bulk email", badRequest(err))
		return
	}
	if len(req.Emails) == 0 {
		h.fail(c, "send bulk email", apperrors.NewValidationError("emails must not be empty"))
		return
	}
	c.JSON(http.StatusOK, h.deps.Email.SendBulk(c.Request.Context(), req.Emails, req.BatchSize))
}

func (h *Handler) SendSMS(c *gin.Context) {
	var req dispatch.SMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "send sms", badRequest(err))
		return
	}
	res, err := h.deps.SMS.Send(c.Request.Context(), req)
	h.respondSend(c, "send sms", http.StatusOK, res, err)
}

func (h *Handler) SendBulkSMS(c *gin.Context) {
	var req BulkSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "send bulk sms", badRequest(err))
		return
	}
	if len(req.Messages) == 0 {
		h.fail(c, "send bulk sms", apperrors.NewValidationError("messages must not be empty"))
		return
	}
	c.JSON(http.StatusOK, h.deps.SMS.SendBulk(c.Request.Context(), req.Messages, req.BatchSize))
}

// History serves ?page&limit&type&status&userId. Unparseable numbers fall
// back to the defaults.
func (h *Handler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	q := records.HistoryQuery{
		Type:   c.Query("type"),
		Status: models.Status(c.Query("status")),
		UserID: c.Query("userId"),
		Page:   page,
		Limit:  limit,
	}
	history, err := h.deps.Notifications.History(c.Request.Context(), q)
	if err != nil {
		h.fail(c, "notification history", err)
		return
	}
	c.JSON(http.StatusOK, history)
}
