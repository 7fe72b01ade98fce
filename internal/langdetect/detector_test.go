package langdetect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectEnglish(t *testing.T) {
	d := New(DefaultConfig(), nil)
	lang, conf := d.Detect("This certificate confirms that the person named below was born on the date written in this document.")
	assert.Equal(t, "en", lang)
	assert.Greater(t, conf, 0.3)
}

func TestDetectFallbacks(t *testing.T) {
	d := New(DefaultConfig(), nil)
	lang, conf := d.Detect("  a ")
	assert.Equal(t, "en", lang)
	assert.Equal(t, 0.5, conf)

	disabled := New(Config{Enabled: false, FallbackLanguage: "hi"}, nil)
	lang, conf = disabled.Detect("plenty of english text here to detect")
	assert.Equal(t, "hi", lang)
	assert.Equal(t, 0.5, conf)
}

func TestSample(t *testing.T) {
	long := strings.Repeat("x", 600)
	s := Sample([]string{"", "abc", long})
	assert.Equal(t, "abc "+strings.Repeat("x", SampleLength), s)
	assert.Equal(t, "", Sample(nil))
}
