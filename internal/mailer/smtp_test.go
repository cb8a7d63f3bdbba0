package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSMTPHost_BlockedHosts(t *testing.T) {
	tests := []struct {
		name string
		host string
	}{
		{"Loopback", "127.0.0.1"},
		{"IPv6 Loopback", "::1"},
		{"Private Class A", "10.0.0.1"},
		{"Private Class B", "172.16.0.1"},
		{"Private Class C", "192.168.1.1"},
		{"Cloud Metadata", "169.254.169.254"},
		{"Unspecified", "0.0.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSMTPHost(tt.host, 587)
			assert.Error(t, err)
		})
	}
}

func TestValidateSMTPHost_InvalidPort(t *testing.T) {
	assert.Error(t, validateSMTPHost("mail.example.com", 0))
	assert.Error(t, validateSMTPHost("mail.example.com", 70000))
}

// TestDeliver_RevalidatesHostOnEverySend guards against DNS rebinding: a
// sender constructed against a then-safe host must still refuse to dial if
// its config now points at a loopback/private address, even though
// NewSMTPSender already validated it once at construction time.
func TestDeliver_RevalidatesHostOnEverySend(t *testing.T) {
	sender := &SMTPSender{cfg: SMTPConfig{
		Host:    "127.0.0.1",
		Port:    25,
		From:    "no-reply@solstice.example",
		TLSMode: "starttls",
	}}

	_, err := sender.Deliver(context.Background(), "user@example.com", "subject", "", "body")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "smtp host rejected")
}
