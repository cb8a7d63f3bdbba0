package mailer

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// job is one queued outbound message.
type job struct {
	to, subject, bodyHTML, bodyText string
	result                          chan<- error
}

// AsyncQueue wraps a Mailer with a bounded worker pool and a token-bucket
// rate limiter, so a burst of MFA/verification emails cannot overwhelm the
// upstream SMTP relay. This is an outbound send throttle, distinct from
// spec.md's login lockout counter (the spec's Non-goals exclude general
// rate-limiting of request handling, not of the mail queue).
type AsyncQueue struct {
	next    Mailer
	limiter *rate.Limiter
	jobs    chan job
	logger  *slog.Logger
}

// NewAsyncQueue starts workerCount goroutines draining a bounded queue,
// each send gated by a limiter allowing ratePerSecond sends/sec with a
// burst of burst. Stop via ctx cancellation.
func NewAsyncQueue(ctx context.Context, next Mailer, ratePerSecond float64, burst, workerCount, queueDepth int, logger *slog.Logger) *AsyncQueue {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	if workerCount <= 0 {
		workerCount = 2
	}
	if queueDepth <= 0 {
		queueDepth = 256
	}

	q := &AsyncQueue{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		jobs:    make(chan job, queueDepth),
		logger:  logger,
	}

	for i := 0; i < workerCount; i++ {
		go q.worker(ctx)
	}
	return q
}

func (q *AsyncQueue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			if err := q.limiter.Wait(ctx); err != nil {
				if j.result != nil {
					j.result <- err
				}
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			_, err := q.next.Deliver(sendCtx, j.to, j.subject, j.bodyHTML, j.bodyText)
			cancel()
			if err != nil {
				q.logger.Warn("mail delivery failed", "to_hash", hashRecipient(j.to), "error", err)
			}
			if j.result != nil {
				j.result <- err
			}
		}
	}
}

// Deliver enqueues the message and returns immediately with StatusOK; the
// actual send happens asynchronously. If the queue is full the message is
// dropped and StatusTransientFailure is returned with a nil error. Matches
// spec §4.6's "best-effort; a mail-delivery failure does not abort login".
func (q *AsyncQueue) Deliver(ctx context.Context, to, subject, bodyHTML, bodyText string) (Status, error) {
	select {
	case q.jobs <- job{to: to, subject: subject, bodyHTML: bodyHTML, bodyText: bodyText}:
		return StatusOK, nil
	case <-ctx.Done():
		return StatusTransientFailure, ctx.Err()
	default:
		q.logger.Warn("mail queue full, dropping send", "to_hash", hashRecipient(to))
		return StatusTransientFailure, nil
	}
}

func hashRecipient(to string) string {
	if len(to) <= 3 {
		return "***"
	}
	return to[:2] + "***" + to[len(to)-1:]
}
