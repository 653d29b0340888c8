// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/campaign-dispatch/internal/provider"
)

// TemplateComponents maps a recipient's positional variables onto the template body.
// Templates without placeholders get no components.
func TemplateComponents(vars []string) []provider.Component {
	if len(vars) == 0 {
		return nil
	}
	values := make([]string, len(vars))
	for i, v := range vars {
		v = strings.TrimSpace(v)
		if v == "" {
			v = "-"
		}
		values[i] = v
	}
	return []provider.Component{provider.BodyComponent(values...)}
}
