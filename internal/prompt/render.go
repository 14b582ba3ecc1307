package prompt

import (
	"fmt"
	"strings"
)

// RenderError reports a template that cannot be filled in.
type RenderError struct {
	Template    string
	Placeholder string
	Reason      string
}

func (e *RenderError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("prompt: render %s template: %s {%s}", e.Template, e.Reason, e.Placeholder)
	}
	return fmt.Sprintf("prompt: render %s template: %s", e.Template, e.Reason)
}

// render substitutes {name} placeholders. Literal braces are written as {{ and }}.
func render(name, tpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tpl))
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return "", &RenderError{Template: name, Reason: "unterminated placeholder"}
			}
			key := tpl[i+1 : i+1+end]
			v, ok := values[key]
			if !ok {
				return "", &RenderError{Template: name, Placeholder: key, Reason: "unresolved placeholder"}
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", &RenderError{Template: name, Reason: "single '}' encountered"}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
