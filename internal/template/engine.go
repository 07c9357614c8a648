// Package template implements {variable} placeholder extraction and
// substitution for mail-merge templates. Substitution is a single flat
// pass: no loops, no conditionals, no re-expansion of inserted values.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// variable pattern for template substitution: {variable_name}
var varPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// ExtractVariables returns the unique variable names referenced in text,
// in first-occurrence order. Names are trimmed of surrounding whitespace;
// empty names and nested/empty brace pairs yield no match.
func ExtractVariables(text string) []string {
	matches := varPattern.FindAllStringSubmatch(text, -1)

	seen := make(map[string]struct{})
	var result []string
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}

// Render substitutes every placeholder in tmpl with its value from data.
// An absent or empty value falls back to defaults; if still absent the
// placeholder renders as an empty string. A default value containing
// {other} is inserted verbatim, not re-expanded.
func Render(tmpl string, data, defaults map[string]string) string {
	if tmpl == "" {
		return ""
	}

	return varPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := strings.TrimSpace(match[1 : len(match)-1])
		if value := data[name]; value != "" {
			return value
		}
		return defaults[name]
	})
}

// RenderEmail produces the final subject/body for one row.
//
// The row is considered incomplete when any variable referenced by the
// primary subject or body is known to the row or the defaults map but
// resolves to an empty row value. If the row is incomplete and both
// alternate templates are non-empty, the alternate pair is rendered
// wholesale against the same data and defaults; otherwise the primary
// pair is rendered with empty-string/default substitution. There is no
// per-field mixing of the two pairs.
//
// Incompleteness is judged against the primary templates only: a
// variable that appears only in the alternate pair and is missing from
// the row renders blank without triggering any further fallback.
func RenderEmail(subject, body string, data, defaults map[string]string, altSubject, altBody string) Rendered {
	vars := ExtractVariables(subject)
	for _, v := range ExtractVariables(body) {
		found := false
		for _, existing := range vars {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			vars = append(vars, v)
		}
	}

	hasEmpty := false
	for _, v := range vars {
		_, inData := data[v]
		_, inDefaults := defaults[v]
		if !inData && !inDefaults {
			continue
		}
		if data[v] == "" {
			hasEmpty = true
			break
		}
	}

	if hasEmpty && altSubject != "" && altBody != "" {
		return Rendered{
			Subject:       Render(altSubject, data, defaults),
			Body:          Render(altBody, data, defaults),
			UsedAlternate: true,
		}
	}

	return Rendered{
		Subject: Render(subject, data, defaults),
		Body:    Render(body, data, defaults),
	}
}

// EmptyVariables returns the subset of variables whose row value is
// empty, preserving order. Defaults are ignored; this is for diagnostic
// display only.
func EmptyVariables(data map[string]string, variables []string) []string {
	var empty []string
	for _, v := range variables {
		if data[v] == "" {
			empty = append(empty, v)
		}
	}
	return empty
}

// Validate checks template syntax: balanced braces and non-empty
// placeholder names. Used to reject bad templates before a run is built.
func Validate(text string) error {
	depth := 0
	start := 0
	for i, r := range text {
		switch r {
		case '{':
			if depth > 0 {
				return fmt.Errorf("nested brace at position %d", i)
			}
			depth++
			start = i
		case '}':
			if depth == 0 {
				return fmt.Errorf("unmatched closing brace at position %d", i)
			}
			depth--
			if strings.TrimSpace(text[start+1:i]) == "" {
				return fmt.Errorf("empty placeholder at position %d", start)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unclosed brace at position %d", start)
	}
	return nil
}
