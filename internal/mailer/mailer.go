// Package mailer implements the external Mailer contract: deliver(to,
// subject, body_html, body_text) -> ok | transient_failure.
package mailer

import (
	"context"
	"log/slog"
)

// Status is the outcome of a delivery attempt.
type Status string

const (
	StatusOK               Status = "ok"
	StatusTransientFailure Status = "transient_failure"
)

// Mailer is the collaborator the MFA Engine and registration flow call to
// send outbound mail. Kept to the single operation the spec names, so any
// adapter (SMTP, dev console, a future provider) implements it trivially.
type Mailer interface {
	Deliver(ctx context.Context, to, subject, bodyHTML, bodyText string) (Status, error)
}

// DevMailer logs the message instead of sending it, for local development.
type DevMailer struct {
	Logger *slog.Logger
}

func (m *DevMailer) Deliver(ctx context.Context, to, subject, bodyHTML, bodyText string) (Status, error) {
	m.Logger.Info("email delivered (dev)", "to", to, "subject", subject, "body", bodyText)
	return StatusOK, nil
}
