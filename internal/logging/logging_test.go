package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestLevelFromEnv(t *testing.T) {
	os.Setenv("CINCHDB_LOG_LEVEL", "error")
	defer os.Unsetenv("CINCHDB_LOG_LEVEL")

	var buf bytes.Buffer
	log := NewWithWriter("test", &buf)
	log.Info().Msg("should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at error level, got %q", buf.String())
	}

	log.Error().Msg("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected error log to appear, got %q", buf.String())
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("pool", &buf)
	log.Info().Msg("hi")
	if !strings.Contains(buf.String(), `"component":"pool"`) {
		t.Fatalf("expected component field in output, got %q", buf.String())
	}
}
