package api

import (
	"net/http"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/models"

	"github.com/gin-gonic/gin"
)

type CreateTemplateRequest struct {
	TemplateID  string                  `json:"templateId,omitempty"`
	Name        string                  `json:"name"`
	Type        models.Channel          `json:"type"`
	Category    models.TemplateCategory `json:"category,omitempty"`
	Subject     string                  `json:"subject,omitempty"`
	Content     string                  `json:"content"`
	Language    string                  `json:"language,omitempty"`
	Variables   []string                `json:"variables,omitempty"`
	Description string                  `json:"description,omitempty"`
}

func (r CreateTemplateRequest) toTemplate() models.Template {
	return models.Template{
		TemplateID:  r.TemplateID,
		Name:        r.Name,
		Type:        r.Type,
		Category:    r.Category,
		Subject:     r.Subject,
		Content:     r.Content,
		Language:    r.Language,
		Variables:   r.Variables,
		Description: r.Description,
	}
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "create template", badRequest(err))
		return
	}
	t, err := h.deps.Templates.Create(c.Request.Context(), req.toTemplate())
	if err != nil {
		h.fail(c, "create template", err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTemplates(c *gin.Context) {
	channel := models.Channel(c.Query("type"))
	switch channel {
	case "", models.ChannelEmail, models.ChannelSMS, models.ChannelPush:
	default:
		h.fail(c, "list templates", apperrors.NewValidationError("type must be one of email, sms, push"))
		return
	}
	list, err := h.deps.Templates.List(c.Request.Context(), channel)
	if err != nil {
		h.fail(c, "list templates", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetTemplate(c *gin.Context) {
	name := c.Param("name")
	t, found, err := h.deps.Templates.Get(c.Request.Context(), name)
	if err != nil {
		h.fail(c, "get template", err)
		return
	}
	if !found {
		h.fail(c, "get template", apperrors.NewTemplateNotFoundError(name))
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	var patch models.TemplatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.fail(c, "update template", badRequest(err))
		return
	}
	t, err := h.deps.Templates.Update(c.Request.Context(), c.Param("name"), patch)
	if err != nil {
		h.fail(c, "update template", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTemplate deactivates the template; the row is kept.
func (h *Handler) DeleteTemplate(c *gin.Context) {
	name := c.Param("name")
	ok, err := h.deps.Templates.Deactivate(c.Request.Context(), name)
	if err != nil {
		h.fail(c, "delete template", err)
		return
	}
	if !ok {
		h.fail(c, "delete template", apperrors.NewTemplateNotFoundError(name))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "name": name})
}
