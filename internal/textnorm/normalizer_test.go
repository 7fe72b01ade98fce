package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDefaults(t *testing.T) {
	n := New()
	cases := map[string]string{
		"":                       "",
		"ABC":                    "abc",
		"  John \t\n  Doe  ":     "john doe",
		"123 Main Street, Apt 4": "123 main street, apt 4",
	}
	for in, want := range cases {
		assert.Equal(t, want, n.Normalize(in), "input %q", in)
	}
}

func TestNormalizeFlags(t *testing.T) {
	sensitive := Normalizer{CaseSensitive: true, IgnoreWhitespace: true}
	assert.Equal(t, "John Doe", sensitive.Normalize(" John   Doe "))

	keepSpace := Normalizer{CaseSensitive: false, IgnoreWhitespace: false}
	assert.Equal(t, " john   doe ", keepSpace.Normalize(" John   Doe "))
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Hello World",
		"  MIXED\tcase\n\nLines ",
		"ǅemal ΣΊΣΥΦΟΣ",
		"ﬁle İstanbul",
		"नमस्ते दुनिया",
		" non-breaking space",
	}
	normalizers := []Normalizer{
		New(),
		{CaseSensitive: true, IgnoreWhitespace: true},
		{CaseSensitive: false, IgnoreWhitespace: false},
	}
	for _, n := range normalizers {
		for _, s := range inputs {
			once := n.Normalize(s)
			assert.Equal(t, once, n.Normalize(once), "input %q with %+v", s, n)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("\ta  b\n c "))
	assert.Equal(t, "", CollapseWhitespace("   "))
}
