package logger

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeErrorRedactsBotToken(t *testing.T) {
	err := errors.New(`Get "https://api.telegram.org/file/bot123456:AAAbbbCCC_dd-ee/photos/file_1.jpg": dial tcp: i/o timeout`)
	got := SanitizeError(err)
	if strings.Contains(got, "123456:AAAbbbCCC_dd-ee") {
		t.Fatalf("token survived sanitization: %q", got)
	}
	if !strings.Contains(got, "bot<redacted>") {
		t.Fatalf("redaction marker missing: %q", got)
	}
	if !strings.Contains(got, "i/o timeout") {
		t.Fatalf("useful detail lost: %q", got)
	}
}

func TestSanitizeErrorNil(t *testing.T) {
	if got := SanitizeError(nil); got != "" {
		t.Fatalf("SanitizeError(nil) = %q", got)
	}
}
