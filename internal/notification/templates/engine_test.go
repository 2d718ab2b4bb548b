package templates

import (
	"testing"

	apperrors "notification-platform/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		data map[string]interface{}
		want string
	}{
		{"single key", "Hola {{name}}", map[string]interface{}{"name": "Ana"}, "Hola Ana"},
		{"spaced key", "Hola {{ name }}!", map[string]interface{}{"name": "Ana"}, "Hola Ana!"},
		{"repeated key", "{{a}}-{{a}}", map[string]interface{}{"a": "x"}, "x-x"},
		{"missing key renders empty", "Total: {{total}}", map[string]interface{}{}, "Total: "},
		{"nil value renders empty", "[{{v}}]", map[string]interface{}{"v": nil}, "[]"},
		{"numeric value", "$ {{total}}", map[string]interface{}{"total": 1500.5}, "$ 1500.5"},
		{"integer value", "#{{n}}", map[string]interface{}{"n": 42}, "#42"},
		{"nil data", "Hi {{name}}", nil, "Hi "},
		{"no placeholders", "plain text", map[string]interface{}{"x": 1}, "plain text"},
		{"empty template", "", map[string]interface{}{"x": 1}, ""},
		{"dotted key", "{{user.name}}", map[string]interface{}{"user.name": "Leo"}, "Leo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.tmpl, tt.data))
		})
	}
}

func TestRender_IsPure(t *testing.T) {
	data := map[string]interface{}{"name": "Ana"}
	first := Render("Hola {{name}}", data)
	second := Render("Hola {{name}}", data)
	assert.Equal(t, first, second)
	assert.Equal(t, map[string]interface{}{"name": "Ana"}, data)
}

func TestRenderStrict(t *testing.T) {
	out, err := RenderStrict("welcome_email", "Hola {{name}}", map[string]interface{}{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Hola Ana", out)

	_, err = RenderStrict("event_reminder", "{{eventName}} {{eventDate}}", map[string]interface{}{"eventName": "Open"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTemplateRenderFailed))
	assert.Contains(t, err.Error(), "eventDate")
}

func TestVariables(t *testing.T) {
	assert.Equal(t, []string{"eventDate", "eventName"}, Variables("{{eventName}} on {{ eventDate }} ({{eventName}})"))
	assert.Empty(t, Variables("nothing here"))
}

func TestDefaultTemplates_DeclareTheirVariables(t *testing.T) {
	names := map[string]bool{}
	for _, tmpl := range DefaultTemplates() {
		names[tmpl.Name] = true
		assert.ElementsMatch(t, tmpl.Variables, Variables(tmpl.Subject+" "+tmpl.Content), tmpl.Name)
	}
	for _, want := range []string{"welcome_email", "event_reminder", "order_confirmation", "password_reset", "payment_confirmation"} {
		assert.True(t, names[want], want)
	}
}
