// Package events turns broker events into notifications and publishes the
// events other services react to.
package events

const (
	TopicUserRegistered    = "user.registered"
	TopicUserVerified      = "user.verified"
	TopicUserPasswordReset = "user.password_reset"
	TopicEventCreated      = "event.created"
	TopicEventUpdated      = "event.updated"
	TopicEventRegistration = "event.registration"
	TopicOrderCreated      = "order.created"
	TopicOrderCompleted    = "order.completed"
	TopicOrderCancelled    = "order.cancelled"
	TopicPaymentSuccess    = "payment.success"
	TopicPaymentFailed     = "payment.failed"
)

// Topics is the fixed set the notification consumer subscribes to. The admin
// bootstrap creates the same list.
func Topics() []string {
	return []string{
		TopicUserRegistered,
		TopicUserVerified,
		TopicUserPasswordReset,
		TopicEventCreated,
		TopicEventUpdated,
		TopicEventRegistration,
		TopicOrderCreated,
		TopicOrderCompleted,
		TopicOrderCancelled,
		TopicPaymentSuccess,
		TopicPaymentFailed,
	}
}

const (
	groupUser    = "user"
	groupEvent   = "event"
	groupOrder   = "order"
	groupPayment = "payment"
)

// topicGroup maps each topic to the handler group that owns it.
var topicGroup = map[string]string{
	TopicUserRegistered:    groupUser,
	TopicUserVerified:      groupUser,
	TopicUserPasswordReset: groupUser,
	TopicEventCreated:      groupEvent,
	TopicEventUpdated:      groupEvent,
	TopicEventRegistration: groupEvent,
	TopicOrderCreated:      groupOrder,
	TopicOrderCompleted:    groupOrder,
	TopicOrderCancelled:    groupOrder,
	TopicPaymentSuccess:    groupPayment,
	TopicPaymentFailed:     groupPayment,
}
