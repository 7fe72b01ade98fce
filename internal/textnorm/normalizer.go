// Package textnorm canonicalizes strings before they are compared.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalizer folds case and collapses whitespace according to its flags.
// The zero value folds case and keeps whitespace as-is; use New for the
// defaults the verifier runs with.
type Normalizer struct {
	CaseSensitive    bool
	IgnoreWhitespace bool
}

// New returns a normalizer with verification defaults: case-insensitive,
// whitespace collapsed.
func New() Normalizer {
	return Normalizer{CaseSensitive: false, IgnoreWhitespace: true}
}

// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func (n Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}
	out := norm.NFC.String(s)
	if !n.CaseSensitive {
		// Casers carry state; one per call keeps Normalizer safe to share.
		out = norm.NFC.String(cases.Fold().String(out))
	}
	if n.IgnoreWhitespace {
		out = CollapseWhitespace(out)
	}
	return out
}

// CollapseWhitespace replaces every whitespace run with one space and trims
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
