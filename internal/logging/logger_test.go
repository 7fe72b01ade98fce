package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithLevel("fusion", LevelInfo, &buf)

	l.Debug("hidden", "k", 1)
	assert.Empty(t, buf.String())

	l.Info("fused region", "sources", 3, "confidence", 0.8)
	out := buf.String()
	assert.Contains(t, out, "[fusion]")
	assert.Contains(t, out, "[INFO] fused region sources=3 confidence=0.8")
}

func TestLoggerDropsDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithLevel("x", LevelDebug, &buf)
	l.Warn("msg", "a", 1, "dangling")
	assert.Contains(t, buf.String(), "[WARN] msg a=1\n")
}

func TestWithKeepsLevel(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLoggerWithLevel("parent", LevelWarn, &buf)
	child := parent.With("child")
	child.Info("ignored")
	child.Error("kept")
	assert.NotContains(t, buf.String(), "ignored")
	assert.Contains(t, buf.String(), "[child] ")
}

func TestNilAndDiscardLoggersAreSafe(t *testing.T) {
	var l *Logger
	l.Info("nothing")
	Discard().Error("nothing")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
