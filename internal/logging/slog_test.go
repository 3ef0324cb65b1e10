package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewLogger_TextInfoByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, Options{})

	logger.Debug("hidden")
	WithStage(logger, "fetch").Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, "stage=fetch") {
		t.Errorf("expected stage attribute in output: %s", out)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, Options{JSON: true, Debug: true})
	logger.Debug("hello", Path("/tmp/x.csv"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry[KeyPath] != "/tmp/x.csv" {
		t.Errorf("path = %v, want /tmp/x.csv", entry[KeyPath])
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, Options{})
	WithPeriod(WithStage(WithOperation(logger, "generate"), "render"), "October 2024").Info("x")

	out := buf.String()
	for _, want := range []string{"operation=generate", "stage=render", `period="October 2024"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"path", Path("a.pdf"), KeyPath, "a.pdf"},
		{"status", Status(StatusSuccess), KeyStatus, StatusSuccess},
		{"plain calendar", Calendar("primary"), KeyCalendar, "primary"},
		{"duration", Duration(2 * time.Second), KeyDuration, "2s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.String() != tt.wantVal {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.wantVal)
			}
		})
	}
}

func TestCalendar_EmailIsHashed(t *testing.T) {
	attr := Calendar("someone@group.calendar.google.com")
	if strings.Contains(attr.Value.String(), "@") {
		t.Errorf("calendar email should be anonymized, got %q", attr.Value.String())
	}
	if !strings.HasPrefix(attr.Value.String(), "user:") {
		t.Errorf("expected user: prefix, got %q", attr.Value.String())
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("test error"))
	if attr.Key != KeyError || attr.Value.String() != "test error" {
		t.Errorf("Err = %v, want error=test error", attr)
	}

	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string (empty group)", attr.Key)
	}
}

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantLen int
	}{
		{"jane@example.com", 21}, // "user:" + 16 hex chars
		{"billing@sbg.example", 21},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			got := AnonymizeEmail(tt.email)
			if len(got) != tt.wantLen {
				t.Errorf("AnonymizeEmail(%q) length = %d, want %d", tt.email, len(got), tt.wantLen)
			}
		})
	}

	if AnonymizeEmail("a@b.c") != AnonymizeEmail("a@b.c") {
		t.Error("AnonymizeEmail should be deterministic")
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken(""); got != "<empty>" {
		t.Errorf("SanitizeToken(\"\") = %q", got)
	}
	if got := SanitizeToken("ya29.secret"); got != "[token:11 chars]" {
		t.Errorf("SanitizeToken = %q, want [token:11 chars]", got)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"user@example.com", "example.com"},
		{"no-at-sign", ""},
		{"", ""},
		{"a@b@c", ""},
	}
	for _, tt := range tests {
		if got := ExtractDomain(tt.email); got != tt.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
	if Domain("x@sbg.example").Value.String() != "sbg.example" {
		t.Error("Domain attribute should carry the domain")
	}
}

func TestDiscard(t *testing.T) {
	// Should not panic
	Discard().Info("dropped", "key", "value")
}
