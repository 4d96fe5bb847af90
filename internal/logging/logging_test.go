package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupProductionWritesJSON(t *testing.T) {
	var out, tee bytes.Buffer
	logger := SetupWithWriter("production", &out, &tee)

	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "test").Msg("visible")

	if strings.Contains(out.String(), "hidden") {
		t.Fatal("debug line written at info level")
	}
	if !strings.Contains(out.String(), `"component":"test"`) {
		t.Fatalf("expected JSON output, got %q", out.String())
	}
	if tee.String() != out.String() {
		t.Fatalf("tee mismatch: %q vs %q", tee.String(), out.String())
	}
}

func TestSetupDevelopmentLevel(t *testing.T) {
	var out bytes.Buffer
	logger := SetupWithWriter("development", &out, nil)
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}
}
