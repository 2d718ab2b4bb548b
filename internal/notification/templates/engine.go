// Package templates renders {{key}} placeholders and stores named templates.
package templates

import (
	"fmt"
	"regexp"
	"sort"

	apperrors "notification-platform/internal/common/errors"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Render substitutes every {{key}} in tmpl with data[key]. Unknown keys and
// nil values render as the empty string.
func Render(tmpl string, data map[string]interface{}) string {
	if tmpl == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		return format(data[key])
	})
}

// RenderStrict behaves like Render but fails when a placeholder has no value.
func RenderStrict(name, tmpl string, data map[string]interface{}) (string, error) {
	var missing []string
	for _, key := range Variables(tmpl) {
		if _, ok := data[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", apperrors.NewTemplateRenderError(name, missing)
	}
	return Render(tmpl, data), nil
}

// Variables lists the distinct placeholder keys of tmpl, sorted.
func Variables(tmpl string) []string {
	seen := map[string]struct{}{}
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		seen[m[1]] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func format(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
