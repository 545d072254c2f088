package email

import (
	"context"
	"strings"
	"testing"

	"neon/internal/platform/config"
)

func TestNewDisabledIsNoop(t *testing.T) {
	m := New(config.EmailConfig{Enabled: false, SMTPHost: "smtp.example.com"})
	if _, ok := m.(noopMailer); !ok {
		t.Fatalf("expected noop mailer, got %T", m)
	}
	if err := m.Send(context.Background(), "a@example.com", "b@example.com", "s", "b"); err != nil {
		t.Fatalf("noop send failed: %v", err)
	}
}

func TestBuildMessageStripsHeaderBreaks(t *testing.T) {
	msg := string(buildMessage("hr@example.com", "ana@example.com", "Leave approved\r\nBcc: x@evil.test", "body"))
	if strings.Contains(msg, "\r\nBcc:") {
		t.Fatalf("header injection not stripped: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nbody") {
		t.Fatalf("unexpected message layout: %q", msg)
	}
}
