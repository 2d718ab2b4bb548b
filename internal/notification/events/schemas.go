package events

import "notification-platform/internal/common/validation"

// Payload schemas only pin the types of the fields handlers read. Missing
// fields are allowed; handlers skip what they cannot address. Identifiers and
// amounts may arrive as strings or numbers.
const (
	userSchema = `{
		"type": "object",
		"properties": {
			"userId":     {"type": ["string", "number"]},
			"email":      {"type": "string"},
			"name":       {"type": "string"},
			"resetToken": {"type": "string"},
			"resetLink":  {"type": "string"}
		}
	}`

	eventSchema = `{
		"type": "object",
		"properties": {
			"eventId":       {"type": ["string", "number"]},
			"email":         {"type": "string"},
			"eventName":     {"type": "string"},
			"eventDate":     {"type": "string"},
			"eventLocation": {"type": "string"}
		}
	}`

	orderSchema = `{
		"type": "object",
		"properties": {
			"orderNumber":       {"type": ["string", "number"]},
			"customerEmail":     {"type": "string"},
			"customerName":      {"type": "string"},
			"total":             {"type": ["string", "number"]},
			"items":             {"type": "array"},
			"trackingNumber":    {"type": ["string", "number"]},
			"estimatedDelivery": {"type": "string"},
			"reason":            {"type": "string"}
		}
	}`

	paymentSchema = `{
		"type": "object",
		"properties": {
			"transactionId": {"type": ["string", "number"]},
			"orderNumber":   {"type": ["string", "number"]},
			"customerEmail": {"type": "string"},
			"customerName":  {"type": "string"},
			"customerPhone": {"type": "string"},
			"amount":        {"type": ["string", "number"]},
			"reason":        {"type": "string"}
		}
	}`
)

var groupSchemas = map[string]*validation.Schema{
	groupUser:    validation.MustCompile("user-event", userSchema),
	groupEvent:   validation.MustCompile("event-event", eventSchema),
	groupOrder:   validation.MustCompile("order-event", orderSchema),
	groupPayment: validation.MustCompile("payment-event", paymentSchema),
}
