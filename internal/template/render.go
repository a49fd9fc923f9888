// Package template implements placeholder substitution for per-recipient
// mail personalization. Templates use `{key}` placeholders; a placeholder
// whose key is missing from the personalization record is left verbatim,
// since sparse personalization data is expected and must never fail a send.
package template

import "regexp"

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Render substitutes every `{key}` in tmpl with data[key]. Unknown keys
// stay in the output untouched. Pure and idempotent only when the
// substituted values do not themselves contain placeholders; callers
// treat values as opaque text.
func Render(tmpl string, data map[string]string) string {
	if len(data) == 0 {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns the distinct placeholder keys referenced by tmpl,
// in first-appearance order. Used by the CLI to preview what a template
// expects.
func Placeholders(tmpl string) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		keys = append(keys, m[1])
	}
	return keys
}
