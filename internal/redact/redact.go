// Package redact masks credentials in text before it is persisted.
package redact

import "strings"

// Placeholder replaces every match.
const Placeholder = "[REDACTED]"

// Redactor replaces credential-shaped substrings.
type Redactor struct {
	patterns []Pattern
	values   []string
}

// New returns a Redactor with the default patterns plus extra.
func New(extra ...Pattern) *Redactor {
	return &Redactor{patterns: append(DefaultPatterns(), extra...)}
}

// WithValues also masks these literal values, such as API keys read from
// the environment. Values shorter than 8 bytes are ignored.
func (r *Redactor) WithValues(values ...string) *Redactor {
	out := &Redactor{patterns: r.patterns, values: append([]string(nil), r.values...)}
	for _, v := range values {
		if len(v) >= 8 {
			out.values = append(out.values, v)
		}
	}
	return out
}

// String returns s with every match replaced and the number of
// replacements made.
func (r *Redactor) String(s string) (string, int) {
	n := 0
	for _, v := range r.values {
		if c := strings.Count(s, v); c > 0 {
			s = strings.ReplaceAll(s, v, Placeholder)
			n += c
		}
	}
	for _, p := range r.patterns {
		if !p.Regex.MatchString(s) {
			continue
		}
		s = p.Regex.ReplaceAllStringFunc(s, func(string) string {
			n++
			return Placeholder
		})
	}
	return s, n
}
