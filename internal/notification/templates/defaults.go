package templates

import "notification-platform/internal/models"

// DefaultTemplates are seeded on startup when absent.
func DefaultTemplates() []models.Template {
	return []models.Template{
		{
			Name:        "welcome_email",
			Type:        models.ChannelEmail,
			Category:    models.CategoryAuthentication,
			Subject:     "Bienvenido a la Plataforma de Jiu Jitsu {{name}}",
			Content:     "<h1>¡Bienvenido {{name}}!</h1>\n<p>Te damos la bienvenida a nuestra plataforma de Jiu Jitsu.</p>\n<p>Ya puedes explorar eventos, competencias y nuestro marketplace.</p>\n<p>¡Oss!</p>",
			Variables:   []string{"name"},
			Description: "Email de bienvenida para nuevos usuarios",
		},
		{
			Name:        "event_reminder",
			Type:        models.ChannelEmail,
			Category:    models.CategoryTransaction,
			Subject:     "Recordatorio: {{eventName}} - {{eventDate}}",
			Content:     "<h2>Recordatorio de Evento</h2>\n<p>No olvides que tienes registrado el evento:</p>\n<h3>{{eventName}}</h3>\n<p><strong>Fecha:</strong> {{eventDate}}</p>\n<p><strong>Lugar:</strong> {{eventLocation}}</p>\n<p>¡Te esperamos!</p>",
			Variables:   []string{"eventName", "eventDate", "eventLocation"},
			Description: "Recordatorio de eventos próximos",
		},
		{
			Name:        "order_confirmation",
			Type:        models.ChannelEmail,
			Category:    models.CategoryTransaction,
			Subject:     "Confirmación de Pedido #{{orderNumber}}",
			Content:     "<h2>Confirmación de Pedido</h2>\n<p>Hemos recibido tu pedido #{{orderNumber}}</p>\n<p><strong>Total:</strong> $ {{total}}</p>\n<p>Te notificaremos cuando esté listo para envío.</p>",
			Variables:   []string{"orderNumber", "total"},
			Description: "Confirmación de pedidos en marketplace",
		},
		{
			Name:        "password_reset",
			Type:        models.ChannelEmail,
			Category:    models.CategoryAuthentication,
			Subject:     "Restablecer contraseña",
			Content:     "<h2>Restablecer contraseña</h2>\n<p>Hola {{name}}, recibimos una solicitud para restablecer tu contraseña.</p>\n<p><a href=\"{{resetLink}}\">Restablecer contraseña</a></p>\n<p>Si no solicitaste este cambio, ignora este mensaje.</p>",
			Variables:   []string{"name", "resetLink"},
			Description: "Enlace de restablecimiento de contraseña",
		},
		{
			Name:        "payment_confirmation",
			Type:        models.ChannelEmail,
			Category:    models.CategoryTransaction,
			Subject:     "Pago confirmado - Pedido #{{orderNumber}}",
			Content:     "<h2>¡Pago Exitoso!</h2>\n<p>Tu pago por $ {{amount}} ha sido procesado correctamente.</p>\n<p><strong>Pedido:</strong> #{{orderNumber}}</p>\n<p><strong>ID de transacción:</strong> {{transactionId}}</p>",
			Variables:   []string{"amount", "orderNumber", "transactionId"},
			Description: "Confirmación de pagos procesados",
		},
	}
}
