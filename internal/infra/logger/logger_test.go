package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestConfigureProductionUsesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	configure(l, &buf, "debug", "production")

	l.WithField("report_id", 7).Debug("confirmed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "confirmed" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestConfigureInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	configure(l, &buf, "chatty", "development")

	if l.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", l.GetLevel())
	}
	if !strings.Contains(buf.String(), "Invalid log level") {
		t.Errorf("expected a warning about the level, got %q", buf.String())
	}
}
