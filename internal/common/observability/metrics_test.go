package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestZeroValueIsSafe(t *testing.T) {
	var nilObs *Observability
	assert.NotPanics(t, func() {
		nilObs.RecordDispatch(context.Background(), "email", "smtp", true, time.Millisecond)
		nilObs.RecordEvent(context.Background(), "user.registered", "handled")
		nilObs.Shutdown()
	})

	empty := &Observability{}
	assert.NotPanics(t, func() {
		empty.RecordDispatch(context.Background(), "sms", "twilio", false, time.Second)
		empty.RecordEvent(context.Background(), "payment.success", "dropped")
		empty.Shutdown()
	})
}
