package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"off":     zapcore.FatalLevel + 1,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", raw, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expect error for unknown level")
	}
}

func TestNewEnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")

	logger, err := New(Options{Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("expect env level error to win over config debug")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatal("expect error level enabled")
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expect error for bad level")
	}
}
