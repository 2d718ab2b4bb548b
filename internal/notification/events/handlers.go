package events

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"notification-platform/internal/common/logger"
	"notification-platform/internal/notification/dispatch"
	"notification-platform/internal/notification/templates"
)

type EmailSender interface {
	Send(ctx context.Context, req dispatch.EmailRequest) (dispatch.DeliveryResult, error)
}

type SMSSender interface {
	Send(ctx context.Context, req dispatch.SMSRequest) (dispatch.DeliveryResult, error)
}

// DefaultSMSAmountThreshold is the payment amount above which a
// confirmation SMS goes out with the email.
const DefaultSMSAmountThreshold = 1000

type HandlerSettings struct {
	FrontendURL        string
	SMSAmountThreshold float64
}

// Handlers composes notifications for each inbound topic.
type Handlers struct {
	email     EmailSender
	sms       SMSSender
	templates dispatch.TemplateLookup
	settings  HandlerSettings
	logger    logger.Logger
}

func NewHandlers(email EmailSender, sms SMSSender, tmpl dispatch.TemplateLookup, settings HandlerSettings, log logger.Logger) *Handlers {
	if settings.SMSAmountThreshold <= 0 {
		settings.SMSAmountThreshold = DefaultSMSAmountThreshold
	}
	return &Handlers{
		email:     email,
		sms:       sms,
		templates: tmpl,
		settings:  settings,
		logger:    log.WithFields(map[string]interface{}{"component": "event-handlers"}),
	}
}

type payload map[string]interface{}

func (p payload) text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (p payload) textOr(key, fallback string) string {
	if s := p.text(key); s != "" {
		return s
	}
	return fallback
}

func (p payload) number(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// handle dispatches to the group owning topic. Topics with nothing to send
// are logged only.
func (h *Handlers) handle(ctx context.Context, topic string, p payload) error {
	switch topic {
	case TopicUserRegistered:
		return h.userRegistered(ctx, p)
	case TopicUserVerified:
		return h.userVerified(ctx, p)
	case TopicUserPasswordReset:
		return h.passwordReset(ctx, p)
	case TopicEventRegistration:
		return h.eventRegistration(ctx, p)
	case TopicEventCreated, TopicEventUpdated:
		h.logger.Info("Event notification", map[string]interface{}{"topic": topic, "eventId": p.text("eventId")})
		return nil
	case TopicOrderCreated:
		return h.orderCreated(ctx, p)
	case TopicOrderCompleted:
		return h.orderCompleted(ctx, p)
	case TopicOrderCancelled:
		return h.orderCancelled(ctx, p)
	case TopicPaymentSuccess:
		return h.paymentSuccess(ctx, p)
	case TopicPaymentFailed:
		return h.paymentFailed(ctx, p)
	}
	return nil
}

// sendTemplate renders the named template into an email to `to`. A missing
// template is logged and skipped.
func (h *Handlers) sendTemplate(ctx context.Context, name, to, category string, data map[string]interface{}) error {
	tmpl, found, err := h.templates.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("load template %s: %w", name, err)
	}
	if !found {
		h.logger.Warn("Template not found, skipping notification", map[string]interface{}{"template": name})
		return nil
	}
	subject := templates.Render(tmpl.Subject, data)
	if strings.TrimSpace(subject) == "" {
		subject = "Notification"
	}
	_, err = h.email.Send(ctx, dispatch.EmailRequest{
		To:           []string{to},
		Subject:      subject,
		HTML:         templates.Render(tmpl.Content, data),
		Template:     name,
		TemplateData: data,
		Type:         category,
	})
	return err
}

func (h *Handlers) sendInline(ctx context.Context, to, category, subject, body string) error {
	_, err := h.email.Send(ctx, dispatch.EmailRequest{
		To:      []string{to},
		Subject: subject,
		HTML:    body,
		Type:    category,
	})
	return err
}

func (h *Handlers) skip(topic, missing string) error {
	h.logger.Warn("Event payload has no recipient, nothing sent", map[string]interface{}{"topic": topic, "missing": missing})
	return nil
}

// ==========================
// User events
// ==========================

func (h *Handlers) userRegistered(ctx context.Context, p payload) error {
	email := p.text("email")
	if email == "" {
		return h.skip(TopicUserRegistered, "email")
	}
	return h.sendTemplate(ctx, "welcome_email", email, "welcome", map[string]interface{}{
		"name":  p.textOr("name", "Usuario"),
		"email": email,
	})
}

func (h *Handlers) userVerified(ctx context.Context, p payload) error {
	email := p.text("email")
	if email == "" {
		return h.skip(TopicUserVerified, "email")
	}
	name := html.EscapeString(p.textOr("name", "Usuario"))
	return h.sendInline(ctx, email, "account_verified", "Cuenta verificada",
		"<h2>¡Cuenta verificada!</h2>\n"+
			"<p>Hola "+name+", tu dirección de email ha sido verificada.</p>\n"+
			"<p>Ya puedes iniciar sesión y disfrutar de la plataforma.</p>")
}

func (h *Handlers) passwordReset(ctx context.Context, p payload) error {
	email, token := p.text("email"), p.text("resetToken")
	if email == "" || token == "" {
		return h.skip(TopicUserPasswordReset, "email or resetToken")
	}
	link := p.text("resetLink")
	if link == "" && h.settings.FrontendURL != "" {
		link = strings.TrimRight(h.settings.FrontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
	}
	name := html.EscapeString(p.textOr("name", "Usuario"))
	return h.sendInline(ctx, email, "password_reset", "Recuperación de Contraseña - Jiu Jitsu Platform",
		"<h2>Recuperación de Contraseña</h2>\n"+
			"<p>Hola "+name+",</p>\n"+
			"<p>Hemos recibido una solicitud para restablecer tu contraseña.</p>\n"+
			"<p>Haz clic en el siguiente enlace para crear una nueva contraseña:</p>\n"+
			`<a href="`+html.EscapeString(link)+`">Restablecer Contraseña</a>`+"\n"+
			"<p>Este enlace expirará en 1 hora.</p>\n"+
			"<p>Si no solicitaste este cambio, puedes ignorar este email.</p>")
}

// ==========================
// Event (calendar) events
// ==========================

func (h *Handlers) eventRegistration(ctx context.Context, p payload) error {
	email := p.text("email")
	if email == "" {
		return h.skip(TopicEventRegistration, "email")
	}
	return h.sendTemplate(ctx, "event_reminder", email, "event_reminder", map[string]interface{}{
		"eventName":     p.text("eventName"),
		"eventDate":     p.text("eventDate"),
		"eventLocation": p.text("eventLocation"),
	})
}

// ==========================
// Order events
// ==========================

func (h *Handlers) orderCreated(ctx context.Context, p payload) error {
	email := p.text("customerEmail")
	if email == "" {
		return h.skip(TopicOrderCreated, "customerEmail")
	}
	return h.sendTemplate(ctx, "order_confirmation", email, "order_confirmation", map[string]interface{}{
		"orderNumber":  p.text("orderNumber"),
		"total":        p.text("total"),
		"customerName": p.textOr("customerName", "Cliente"),
	})
}

func (h *Handlers) orderCompleted(ctx context.Context, p payload) error {
	email := p.text("customerEmail")
	if email == "" {
		return h.skip(TopicOrderCompleted, "customerEmail")
	}
	order := html.EscapeString(p.text("orderNumber"))
	var b strings.Builder
	b.WriteString("<h2>¡Tu pedido ha sido enviado!</h2>\n")
	fmt.Fprintf(&b, "<p>Hola %s,</p>\n", html.EscapeString(p.textOr("customerName", "Cliente")))
	fmt.Fprintf(&b, "<p>Tu pedido #%s ha sido enviado.</p>\n", order)
	if tracking := p.text("trackingNumber"); tracking != "" {
		fmt.Fprintf(&b, "<p><strong>Número de seguimiento:</strong> %s</p>\n", html.EscapeString(tracking))
	}
	fmt.Fprintf(&b, "<p>Recibirás tu pedido en %s.</p>\n", html.EscapeString(p.textOr("estimatedDelivery", "3-5 días hábiles")))
	b.WriteString("<p>¡Gracias por tu compra!</p>")

	return h.sendInline(ctx, email, "order_completed", "Pedido #"+p.text("orderNumber")+" Enviado", b.String())
}

func (h *Handlers) orderCancelled(ctx context.Context, p payload) error {
	email := p.text("customerEmail")
	if email == "" {
		return h.skip(TopicOrderCancelled, "customerEmail")
	}
	var b strings.Builder
	b.WriteString("<h2>Pedido Cancelado</h2>\n")
	fmt.Fprintf(&b, "<p>Hola %s,</p>\n", html.EscapeString(p.textOr("customerName", "Cliente")))
	fmt.Fprintf(&b, "<p>Tu pedido #%s ha sido cancelado.</p>\n", html.EscapeString(p.text("orderNumber")))
	if reason := p.text("reason"); reason != "" {
		fmt.Fprintf(&b, "<p><strong>Motivo:</strong> %s</p>\n", html.EscapeString(reason))
	}
	b.WriteString("<p>Si el pago ya fue procesado, el reembolso se realizará en 3-5 días hábiles.</p>\n")
	b.WriteString("<p>Si tienes preguntas, no dudes en contactarnos.</p>")

	return h.sendInline(ctx, email, "order_cancelled", "Pedido #"+p.text("orderNumber")+" Cancelado", b.String())
}

// ==========================
// Payment events
// ==========================

// paymentSuccess emails the customer and, for amounts above the threshold,
// also texts them. Both are attempted; the first error is returned.
func (h *Handlers) paymentSuccess(ctx context.Context, p payload) error {
	amount := p.text("amount")
	txID := p.text("transactionId")
	var firstErr error

	if email := p.text("customerEmail"); email != "" {
		var b strings.Builder
		b.WriteString("<h2>¡Pago Confirmado!</h2>\n")
		fmt.Fprintf(&b, "<p>Hola %s,</p>\n", html.EscapeString(p.textOr("customerName", "Cliente")))
		b.WriteString("<p>Hemos recibido tu pago exitosamente.</p>\n")
		fmt.Fprintf(&b, "<p><strong>Monto:</strong> %s</p>\n", html.EscapeString(amount))
		fmt.Fprintf(&b, "<p><strong>ID de Transacción:</strong> %s</p>\n", html.EscapeString(txID))
		if order := p.text("orderNumber"); order != "" {
			fmt.Fprintf(&b, "<p><strong>Pedido:</strong> #%s</p>\n", html.EscapeString(order))
		}
		b.WriteString("<p>Gracias por tu compra.</p>")
		firstErr = h.sendInline(ctx, email, "payment_success", "Pago Confirmado - "+amount, b.String())
	}

	phone := p.text("customerPhone")
	if value, ok := p.number("amount"); ok && phone != "" && value > h.settings.SMSAmountThreshold {
		_, err := h.sms.Send(ctx, dispatch.SMSRequest{
			To:      phone,
			Message: fmt.Sprintf("Pago confirmado por %s. ID: %s. Gracias!", amount, txID),
			Type:    "payment_success",
		})
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handlers) paymentFailed(ctx context.Context, p payload) error {
	email := p.text("customerEmail")
	if email == "" {
		return h.skip(TopicPaymentFailed, "customerEmail")
	}
	var b strings.Builder
	b.WriteString("<h2>Error en el Pago</h2>\n")
	fmt.Fprintf(&b, "<p>Hola %s,</p>\n", html.EscapeString(p.textOr("customerName", "Cliente")))
	b.WriteString("<p>Tu pago no pudo ser procesado.</p>\n")
	if reason := p.text("reason"); reason != "" {
		fmt.Fprintf(&b, "<p><strong>Motivo:</strong> %s</p>\n", html.EscapeString(reason))
	}
	b.WriteString("<p>Por favor, verifica los datos de tu tarjeta e intenta nuevamente.</p>\n")
	b.WriteString("<p>Si el problema persiste, contacta a tu banco o a nuestro soporte.</p>")

	return h.sendInline(ctx, email, "payment_failed", "Error en el Pago", b.String())
}
