package extraction

import (
	"fmt"
	"regexp"
)

type piiPattern struct {
	kind string
	re   *regexp.Regexp
}

// Redaction is the outcome of a PII scan. Mapping ties each placeholder to the
// value it replaced and must never leave the process.
type Redaction struct {
	Text    string
	Counts  map[string]int
	Mapping map[string]string
}

// Found reports whether any PII was replaced.
func (r Redaction) Found() bool {
	return len(r.Counts) > 0
}

// Guard replaces personal identifiers with typed placeholders.
type Guard struct {
	patterns []piiPattern
}

// NewGuard returns a Guard for email, payment card, national id, tax id, and
// phone patterns. More specific shapes are scanned before broader ones.
func NewGuard() *Guard {
	return &Guard{
		patterns: []piiPattern{
			{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			{"CREDIT_CARD", regexp.MustCompile(`\b(?:\d{4}[-\s]){3}\d{4}\b|\b\d{16}\b`)},
			{"AADHAAR", regexp.MustCompile(`\b\d{4}\s\d{4}\s\d{4}\b`)},
			{"SSN_US", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
			{"PAN_INDIA", regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`)},
			{"PHONE", regexp.MustCompile(`(?:\+\d{1,3}[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.]?\d{4}\b`)},
		},
	}
}

// Redact replaces each distinct match with [KIND_n], numbering per kind in
// order of first appearance. Repeated values share a placeholder.
func (g *Guard) Redact(text string) Redaction {
	out := Redaction{
		Text:    text,
		Counts:  make(map[string]int),
		Mapping: make(map[string]string),
	}

	for _, p := range g.patterns {
		assigned := make(map[string]string)

		out.Text = p.re.ReplaceAllStringFunc(out.Text, func(match string) string {
			if token, ok := assigned[match]; ok {
				return token
			}
			out.Counts[p.kind]++
			token := fmt.Sprintf("[%s_%d]", p.kind, out.Counts[p.kind])
			assigned[match] = token
			out.Mapping[token] = match
			return token
		})
	}

	return out
}

// Kinds lists the pattern kinds detected in text without redacting it.
func (g *Guard) Kinds(text string) []string {
	var kinds []string
	for _, p := range g.patterns {
		if p.re.MatchString(text) {
			kinds = append(kinds, p.kind)
		}
	}
	return kinds
}
