package retry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erauner12/listd/internal/mutation"
	"github.com/erauner12/listd/internal/node"
	"github.com/erauner12/listd/internal/retry"
	"github.com/erauner12/listd/internal/storage"
	"github.com/erauner12/listd/internal/storage/memadapter"
	"github.com/google/uuid"
)

func TestDo_RetriesOnRetryableThenSucceeds(t *testing.T) {
	ctx := context.Background()
	a := memadapter.New()

	attempts := 0
	result, err := retry.Do(ctx, a, "testOp", 5, retry.NoBackoff(),
		func(ctx context.Context, s storage.Session) (int, error) {
			attempts++
			if attempts < 3 {
				return 0, retryableViaRace()
			}
			return attempts, nil
		})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if result != 3 || attempts != 3 {
		t.Fatalf("expected exactly 3 attempts before success, got result=%d attempts=%d", result, attempts)
	}
}

func TestDo_SurfacesConflictImmediatelyWithoutRetrying(t *testing.T) {
	ctx := context.Background()
	a := memadapter.New()

	attempts := 0
	_, err := retry.Do(ctx, a, "testOp", 5, retry.NoBackoff(),
		func(ctx context.Context, s storage.Session) (int, error) {
			attempts++
			return 0, &mutation.ConflictError{Message: "permanent"}
		})
	if err == nil {
		t.Fatalf("expected the conflict to surface")
	}
	if attempts != 1 {
		t.Fatalf("a CONFLICT must never be retried, got %d attempts", attempts)
	}
}

func TestDo_ExhaustsAttemptBudgetAsConflict(t *testing.T) {
	ctx := context.Background()
	a := memadapter.New()

	attempts := 0
	_, err := retry.Do(ctx, a, "testOp", 3, retry.NoBackoff(),
		func(ctx context.Context, s storage.Session) (int, error) {
			attempts++
			return 0, retryableViaRace()
		})
	if attempts != 3 {
		t.Fatalf("expected exactly maxAttempts attempts, got %d", attempts)
	}
	var conflictErr *mutation.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected budget exhaustion to surface as *mutation.ConflictError, got %T: %v", err, err)
	}
}

// retryableViaRace stages, inside one session, the half-relinked state a lost
// race leaves a reader with (x.next points at y, but y.prev does not point
// back at x), so InsertAfter's neighbour predicate fails and the mutation
// engine returns its real RETRYABLE signal rather than one fabricated out of
// an unexported type.
func retryableViaRace() error {
	ctx := context.Background()
	a := memadapter.New()

	s, _ := a.Begin(ctx)
	defer s.End(ctx)

	xID, yID := uuid.New(), uuid.New()
	_ = s.Insert(ctx, node.Node{ID: xID, Next: &yID})
	_ = s.Insert(ctx, node.Node{ID: yID})

	_, err := mutation.InsertAfter(ctx, s, &xID)
	s.Rollback(ctx)
	return err
}
