// Package retry implements the bounded retry loop that turns a RETRYABLE
// signal from the mutation engine into a fresh attempt, and a CONFLICT (or
// any other error) into an immediate, unretried failure.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erauner12/listd/internal/mutation"
	"github.com/erauner12/listd/internal/storage"
	"github.com/rs/zerolog/log"
)

// DefaultMaxAttempts matches spec §4.3's reference bound. It is arbitrary —
// spec §9 flags it as an open question — and callers may override it via Do's
// maxAttempts parameter.
const DefaultMaxAttempts = 10

// Op is a mutation closure: it receives a fresh transactional session and
// returns a result or one of the engine's tagged errors.
type Op[R any] func(ctx context.Context, s storage.Session) (R, error)

// NoBackoff is the zero-delay policy matching "the base spec requires none."
func NoBackoff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// Do runs fn inside a fresh transaction, committing on normal return,
// rolling back and retrying on a RETRYABLE signal (from fn or from the
// storage adapter's commit-time write-conflict detection), and surfacing
// CONFLICT or any other error immediately without retry.
//
// op labels the attempt in the per-attempt log line (e.g. "addNode",
// "removeNode"), mirroring the per-call `logger := log.With().Logger()`
// density of the teacher's task_list_service.go. policy governs the delay
// between attempts; pass NoBackoff() for none, or an exponential
// backoff.BackOff to resolve spec §9's open question about adding jitter
// under heavy contention. If the attempt budget is exhausted, Do returns a
// *mutation.ConflictError per spec §4.3's final step.
func Do[R any](ctx context.Context, adapter storage.Adapter, op string, maxAttempts int, policy backoff.BackOff, fn Op[R]) (R, error) {
	var zero R
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if policy == nil {
		policy = NoBackoff()
	}
	policy.Reset()

	logger := log.With().Str("op", op).Logger()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, retryNow, err := attemptOnce(ctx, adapter, fn)

		switch {
		case retryNow:
			logger.Info().Int("attempt", attempt).Str("outcome", "retry").Msg("mutation attempt lost a race, retrying")
		case err == nil:
			logger.Debug().Int("attempt", attempt).Str("outcome", "committed").Msg("mutation attempt committed")
			return result, nil
		default:
			outcome := "error"
			var conflictErr *mutation.ConflictError
			if errors.As(err, &conflictErr) {
				outcome = "conflict"
			}
			logger.Warn().Int("attempt", attempt).Str("outcome", outcome).Err(err).Msg("mutation attempt failed")
			return zero, err
		}

		if attempt == maxAttempts {
			break
		}

		if d := policy.NextBackOff(); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	logger.Warn().Int("attempt", maxAttempts).Str("outcome", "conflict").Msg("mutation attempt budget exhausted")
	return zero, &mutation.ConflictError{Message: "could not complete operation after several retries"}
}

// attemptOnce runs a single fresh-session attempt. The bool return
// indicates whether the caller should retry; when false, (result, err) is
// the driver's final answer.
func attemptOnce[R any](ctx context.Context, adapter storage.Adapter, op Op[R]) (R, bool, error) {
	var zero R

	s, err := adapter.Begin(ctx)
	if err != nil {
		return zero, false, err
	}
	defer s.End(ctx)

	result, opErr := op(ctx, s)
	if opErr != nil {
		_ = s.Rollback(ctx)
		if mutation.IsRetryable(opErr) {
			return zero, true, nil
		}
		return zero, false, opErr
	}

	if commitErr := s.Commit(ctx); commitErr != nil {
		if errors.Is(commitErr, storage.ErrSerializationConflict) {
			return zero, true, nil
		}
		return zero, false, commitErr
	}

	return result, false, nil
}
