// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package redact masks sensitive fields and patterns in log previews.
// Stored extraction JSON is never redacted, only what gets logged.
package redact

import (
	"regexp"
	"strings"
)

var (
	ssnDashed  = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	ssnBare    = regexp.MustCompile(`\b\d{9}\b`)
	creditCard = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
)

// Redactor masks configured field names in maps and known sensitive
// patterns in free text. Field matching is case-insensitive.
type Redactor struct {
	fields map[string]struct{}
}

// New creates a redactor for the given field names.
func New(fields []string) *Redactor {
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[strings.ToLower(field)] = struct{}{}
	}
	return &Redactor{fields: set}
}

// Map returns a copy of data with configured fields replaced by
// "[REDACTED]". Nested maps and lists of maps are walked recursively.
func (r *Redactor) Map(data map[string]any) map[string]any {
	if len(r.fields) == 0 {
		return data
	}

	redacted := make(map[string]any, len(data))
	for key, value := range data {
		if _, sensitive := r.fields[strings.ToLower(key)]; sensitive {
			redacted[key] = "[REDACTED]"
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			redacted[key] = r.Map(v)
		case []any:
			items := make([]any, len(v))
			for i, item := range v {
				if m, ok := item.(map[string]any); ok {
					items[i] = r.Map(m)
				} else {
					items[i] = item
				}
			}
			redacted[key] = items
		default:
			redacted[key] = value
		}
	}
	return redacted
}

// Text masks SSN and credit card number patterns in free text.
func (r *Redactor) Text(text string) string {
	text = ssnDashed.ReplaceAllString(text, "[SSN-REDACTED]")
	text = ssnBare.ReplaceAllString(text, "[SSN-REDACTED]")
	text = creditCard.ReplaceAllString(text, "[CC-REDACTED]")
	return text
}
