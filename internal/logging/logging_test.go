package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	component := Component(logger, "uploader")
	component.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %s", out)
	}
	if !strings.Contains(out, `"component":"uploader"`) {
		t.Errorf("component field missing: %s", out)
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "nonsense"}, &buf)
	logger.Debug().Msg("debug")
	logger.Info().Msg("info")
	if strings.Contains(buf.String(), `"message":"debug"`) || !strings.Contains(buf.String(), `"message":"info"`) {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
