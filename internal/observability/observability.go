// Package observability wires Sentry error reporting and correlation ids
// for non-HTTP code (spec §7: "Internal errors... always logged with a
// correlation id"). It is the same Sentry usage as the teacher's
// middleware/sentry.go and middleware/recovery.go, pulled out of the HTTP
// layer so the store, mailer queue, and orchestrator can report the same
// way without depending on net/http.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

type correlationIDKey struct{}

// WithCorrelationID attaches id to ctx for downstream logging and Capture
// calls.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the id attached by WithCorrelationID, or "" if none.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// Init configures the global Sentry client. A blank dsn disables reporting
// (sentry-go no-ops in that case), matching local/dev environments that run
// without a DSN configured.
func Init(dsn, env string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
	})
}

// Capture reports an Internal error (spec §7) to Sentry tagged with the
// request's correlation id, and always logs it via slog regardless of
// whether Sentry is configured. Domain/auth errors (invalid_credentials,
// invalid_refresh, etc.) are expected control flow and must never be passed
// here.
func Capture(ctx context.Context, err error) {
	correlationID := CorrelationID(ctx)

	slog.Error("internal error", "error", err, "correlation_id", correlationID)

	sentry.WithScope(func(scope *sentry.Scope) {
		if correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		sentry.CaptureException(err)
	})
}

// Flush blocks until pending Sentry events are sent or timeout elapses.
// Call this from main before process exit.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}
