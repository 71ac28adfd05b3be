package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewLogger(&buf, "info", false), "fetch")

	logger.Debug().Msg("hidden")
	logger.Info().Str("account", "swyx").Msg("page fetched")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["component"] != "fetch" || entry["account"] != "swyx" || entry["message"] != "page fetched" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewLogger_Pretty(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", true)
	logger.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("pretty output should not be JSON: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("missing message: %q", buf.String())
	}
}
