package highlight

import "strings"

type declaration struct {
	name  string
	value string
}

func parseStyle(style string) []declaration {
	var decls []declaration
	for _, part := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		decls = append(decls, declaration{name: name, value: strings.TrimSpace(value)})
	}
	return decls
}

func formatStyle(decls []declaration) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.name + ": " + d.value
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}

// styleProperty returns the value of name in an inline style attribute.
func styleProperty(style, name string) (string, bool) {
	for _, d := range parseStyle(style) {
		if d.name == name {
			return d.value, true
		}
	}
	return "", false
}

// setStyleProperty sets name to value, or removes it when value is empty.
// Other declarations keep their order.
func setStyleProperty(style, name, value string) string {
	decls := parseStyle(style)
	out := decls[:0]
	found := false
	for _, d := range decls {
		if d.name != name {
			out = append(out, d)
			continue
		}
		if found || value == "" {
			continue
		}
		d.value = value
		out = append(out, d)
		found = true
	}
	if !found && value != "" {
		out = append(out, declaration{name: name, value: value})
	}
	return formatStyle(out)
}
