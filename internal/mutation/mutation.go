// Package mutation implements the two structural operations the service
// supports — insert-after and delete — against a version-stamped,
// doubly-linked list of storage.Node. Both run inside a transaction handed
// to them by the retry driver; the engine itself never opens or commits one.
//
// Rather than raising two differently-named exceptions for the retry/
// conflict split (spec §4.2's "rationale for the dual signal"), every
// operation here returns its result together with an error value that is
// nil on success, the retryable signal (see IsRetryable), a permanent
// *ConflictError, or a storage error passed through unchanged. This is the tagged-result
// redesign spec.md's design notes recommend over raising — it makes it
// impossible for a caller to accidentally catch-and-swallow the retry
// signal the way a bare `except Exception` would.
package mutation

import (
	"context"
	"fmt"

	"github.com/erauner12/listd/internal/node"
	"github.com/erauner12/listd/internal/storage"
	"github.com/google/uuid"
)

// ConflictError is the CONFLICT signal: the operation's required
// precondition is permanently unsatisfiable in the current state. It is
// never retried; the retry driver surfaces it to the caller immediately.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// retryableErr is the RETRYABLE signal: a lost race on a version- or
// pointer-check predicate. It is caught only by the retry driver and never
// surfaces to a caller as-is.
type retryableErr struct{ cause string }

func (e *retryableErr) Error() string { return "retryable: " + e.cause }

func retryable(cause string) error { return &retryableErr{cause: cause} }

// IsRetryable reports whether err is the RETRYABLE signal.
func IsRetryable(err error) bool {
	_, ok := err.(*retryableErr)
	return ok
}

// PointerDelta describes a change the engine applied to an existing node's
// prev/next pointer, keyed by node id on the wire. A nil Prev/Next value is
// itself meaningful (head/tail), so both fields are pointers-to-pointer:
// nil means "unchanged", a pointer to a nil *uuid.UUID means "set to nil".
type PointerDelta struct {
	Prev **uuid.UUID `json:"-"`
	Next **uuid.UUID `json:"-"`
}

// InsertResult is returned by InsertAfter.
type InsertResult struct {
	CreatedNode  node.Node
	UpdatedNodes map[uuid.UUID]PointerDelta
}

// DeleteResult is returned by Delete.
type DeleteResult struct {
	DeletedNodeID uuid.UUID
	UpdatedNodes  map[uuid.UUID]PointerDelta
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func setPrevDelta(id *uuid.UUID) PointerDelta {
	return PointerDelta{Prev: &id}
}

func setNextDelta(id *uuid.UUID) PointerDelta {
	return PointerDelta{Next: &id}
}

// InsertAfter creates a new node after prevID (or at the head, if prevID is
// nil) and links it into the list. It must run inside a transaction owned by
// the caller (the retry driver); it never begins or commits one itself.
//
// On success it returns the created node and the set of existing nodes whose
// pointers changed. On a lost race against another committed writer it
// returns a RETRYABLE error (check with IsRetryable). On a permanently
// unsatisfiable precondition — the named reference node, or a neighbour it
// depended on, no longer exists — it returns a *ConflictError.
func InsertAfter(ctx context.Context, s storage.Session, prevID *uuid.UUID) (InsertResult, error) {
	if prevID == nil {
		return insertAtHead(ctx, s)
	}
	return insertAfterNode(ctx, s, *prevID)
}

func insertAtHead(ctx context.Context, s storage.Session) (InsertResult, error) {
	head, err := s.FindHead(ctx)
	if err != nil {
		return InsertResult{}, err
	}

	var nextID *uuid.UUID
	if head != nil {
		nextID = ptr(head.ID)
	}

	created := node.Node{ID: uuid.New(), Prev: nil, Next: nextID, Version: 0}

	updated := map[uuid.UUID]PointerDelta{}

	if head != nil {
		pred := storage.Predicate{Version: head.Version}.WithPrev(nil)
		mut := storage.SetPrevTo(ptr(created.ID))
		result, err := s.ConditionalUpdate(ctx, head.ID, pred, mut)
		if err != nil {
			return InsertResult{}, err
		}
		if result == nil {
			return InsertResult{}, retryable("head changed underneath insert-at-head")
		}
		updated[head.ID] = setPrevDelta(ptr(created.ID))
	}

	if err := s.Insert(ctx, created); err != nil {
		return InsertResult{}, err
	}

	return InsertResult{CreatedNode: created, UpdatedNodes: updated}, nil
}

func insertAfterNode(ctx context.Context, s storage.Session, prevID uuid.UUID) (InsertResult, error) {
	p, err := s.Find(ctx, prevID)
	if err != nil {
		return InsertResult{}, err
	}
	if p == nil {
		return InsertResult{}, conflict("reference node was deleted")
	}

	nextID := p.Next
	created := node.Node{ID: uuid.New(), Prev: ptr(prevID), Next: nextID, Version: 0}

	// The predicate must cover p.Next as well as p.Version: a bare version
	// check would let a second insert-after the same node, racing on stale
	// reads, both appear to succeed (spec §4.2's "edge cases fixed by
	// contract").
	pPred := storage.Predicate{Version: p.Version}.WithNext(nextID)
	pMut := storage.SetNextTo(ptr(created.ID))
	pResult, err := s.ConditionalUpdate(ctx, prevID, pPred, pMut)
	if err != nil {
		return InsertResult{}, err
	}
	if pResult == nil {
		return InsertResult{}, retryable("prev node changed underneath insert-after")
	}

	updated := map[uuid.UUID]PointerDelta{prevID: setNextDelta(ptr(created.ID))}

	if nextID != nil {
		q, err := s.Find(ctx, *nextID)
		if err != nil {
			return InsertResult{}, err
		}
		if q == nil {
			return InsertResult{}, conflict("next node deleted concurrently")
		}

		qPred := storage.Predicate{Version: q.Version}.WithPrev(ptr(prevID))
		qMut := storage.SetPrevTo(ptr(created.ID))
		qResult, err := s.ConditionalUpdate(ctx, *nextID, qPred, qMut)
		if err != nil {
			return InsertResult{}, err
		}
		if qResult == nil {
			return InsertResult{}, retryable("next node changed underneath insert-after")
		}
		updated[*nextID] = setPrevDelta(ptr(created.ID))
	}

	if err := s.Insert(ctx, created); err != nil {
		return InsertResult{}, err
	}

	return InsertResult{CreatedNode: created, UpdatedNodes: updated}, nil
}

// Delete removes the node identified by id and relinks its neighbours. Same
// transactional and error-signalling contract as InsertAfter.
func Delete(ctx context.Context, s storage.Session, id uuid.UUID) (DeleteResult, error) {
	d, err := s.Find(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	if d == nil {
		return DeleteResult{}, conflict("node not found or already deleted")
	}

	updated := map[uuid.UUID]PointerDelta{}

	if d.Prev != nil {
		p, err := s.Find(ctx, *d.Prev)
		if err != nil {
			return DeleteResult{}, err
		}
		if p == nil {
			return DeleteResult{}, conflict("previous node deleted concurrently")
		}

		pPred := storage.Predicate{Version: p.Version}.WithNext(ptr(id))
		pMut := storage.SetNextTo(d.Next)
		pResult, err := s.ConditionalUpdate(ctx, *d.Prev, pPred, pMut)
		if err != nil {
			return DeleteResult{}, err
		}
		if pResult == nil {
			return DeleteResult{}, retryable("previous node changed underneath delete")
		}
		updated[*d.Prev] = setNextDelta(d.Next)
	}

	if d.Next != nil {
		q, err := s.Find(ctx, *d.Next)
		if err != nil {
			return DeleteResult{}, err
		}
		if q == nil {
			return DeleteResult{}, conflict("next node deleted concurrently")
		}

		qPred := storage.Predicate{Version: q.Version}.WithPrev(ptr(id))
		qMut := storage.SetPrevTo(d.Prev)
		qResult, err := s.ConditionalUpdate(ctx, *d.Next, qPred, qMut)
		if err != nil {
			return DeleteResult{}, err
		}
		if qResult == nil {
			return DeleteResult{}, retryable("next node changed underneath delete")
		}
		updated[*d.Next] = setPrevDelta(d.Prev)
	}

	ok, err := s.ConditionalDelete(ctx, id, storage.VersionOnly(d.Version))
	if err != nil {
		return DeleteResult{}, err
	}
	if !ok {
		return DeleteResult{}, retryable("target node changed underneath delete")
	}

	return DeleteResult{DeletedNodeID: id, UpdatedNodes: updated}, nil
}
