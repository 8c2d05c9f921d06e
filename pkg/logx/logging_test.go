package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "info").With(String("comp", "test"))

	log.Debug("hidden")
	log.Warn("visible", Int("n", 3), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["message"] != "visible" || m["comp"] != "test" || m["err"] != "boom" {
		t.Fatalf("unexpected record: %v", m)
	}
	if n, _ := m["n"].(float64); n != 3 {
		t.Fatalf("n = %v, want 3", m["n"])
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("expected zero logger")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop() should not report zero")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "trace", "Info", "error"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud) = true")
	}
}
