package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerTo(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("NewLoggerTo failed: %v", err)
	}
	l.WithFields(Fields{"url": "https://example.com/"}).Debug("link checked")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if entry["url"] != "https://example.com/" || entry["msg"] != "link checked" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerTo(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("NewLoggerTo failed: %v", err)
	}
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestNewLoggerRejectsBadInput(t *testing.T) {
	if _, err := NewLogger("chatty", "text"); err == nil {
		t.Fatal("expected bad level to fail")
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Fatal("expected bad format to fail")
	}
}
