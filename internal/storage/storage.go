// Package storage defines the adapter contract the mutation engine is built
// against: conditional updates predicated on a version field, serializable
// transactions with automatic rollback, and a snapshot read of all nodes.
//
// The contract is deliberately narrow — find/findHead/insert/conditionalUpdate/
// conditionalDelete/commit/rollback — so that any backend offering at-least
// snapshot isolation with commit-time write-conflict detection can satisfy it.
package storage

import (
	"context"
	"errors"

	"github.com/erauner12/listd/internal/node"
	"github.com/google/uuid"
)

// ErrSerializationConflict is returned by Session.Commit when the underlying
// backend detects a write-write conflict at commit time (e.g. Postgres
// SQLSTATE 40001/40P01). The mutation engine treats it identically to a
// failed predicate: RETRYABLE.
var ErrSerializationConflict = errors.New("storage: serialization conflict")

// Predicate is a conjunction of field-equals checks evaluated atomically by
// ConditionalUpdate/ConditionalDelete. Version is always checked; Prev/Next
// are checked only when their Check flag is set, since a nil pointer is
// itself a meaningful value (head/tail) and must be distinguishable from
// "don't care".
type Predicate struct {
	Version   int64
	CheckPrev bool
	Prev      *uuid.UUID
	CheckNext bool
	Next      *uuid.UUID
}

// VersionOnly builds a predicate that checks only the version field.
func VersionOnly(version int64) Predicate {
	return Predicate{Version: version}
}

// WithPrev adds a prev-pointer check to the predicate.
func (p Predicate) WithPrev(prev *uuid.UUID) Predicate {
	p.CheckPrev = true
	p.Prev = prev
	return p
}

// WithNext adds a next-pointer check to the predicate.
func (p Predicate) WithNext(next *uuid.UUID) Predicate {
	p.CheckNext = true
	p.Next = next
	return p
}

// Mutation is a partial field assignment applied by ConditionalUpdate. The
// version column is always incremented by one as part of the same atomic
// statement; it is never set explicitly by the caller.
type Mutation struct {
	SetPrev bool
	Prev    *uuid.UUID
	SetNext bool
	Next    *uuid.UUID
}

// SetPrevTo builds a mutation that assigns prev.
func SetPrevTo(id *uuid.UUID) Mutation {
	return Mutation{SetPrev: true, Prev: id}
}

// SetNextTo builds a mutation that assigns next.
func SetNextTo(id *uuid.UUID) Mutation {
	return Mutation{SetNext: true, Next: id}
}

// Adapter opens transactional sessions and serves the snapshot read used by
// the Snapshot Provider boundary (spec §4.5).
type Adapter interface {
	// Begin opens a fresh session with at least snapshot isolation and
	// commit-time write-conflict detection.
	Begin(ctx context.Context) (Session, error)

	// ListAll returns every persisted node, in no particular order; callers
	// reconstruct list order by walking prev/next.
	ListAll(ctx context.Context) ([]node.Node, error)
}

// Session is a single transactional attempt. Every method is a potential
// suspension point; no in-memory invariant is assumed across calls beyond
// what was just read.
type Session interface {
	// Find reads a node by id. Returns (nil, nil) if it does not exist.
	Find(ctx context.Context, id uuid.UUID) (*node.Node, error)

	// FindHead returns the node with prev = nil, or (nil, nil) if the list
	// is empty.
	FindHead(ctx context.Context) (*node.Node, error)

	// Insert stores a freshly constructed node. The node must not already
	// exist.
	Insert(ctx context.Context, n node.Node) error

	// ConditionalUpdate atomically applies mut iff the persisted row for id
	// still matches pred, bumping version by one. Returns the post-mutation
	// node on success, (nil, nil) if the predicate failed.
	ConditionalUpdate(ctx context.Context, id uuid.UUID, pred Predicate, mut Mutation) (*node.Node, error)

	// ConditionalDelete atomically removes the row for id iff it matches
	// pred. Returns false if the predicate failed.
	ConditionalDelete(ctx context.Context, id uuid.UUID, pred Predicate) (bool, error)

	// Commit commits the transaction. May return ErrSerializationConflict.
	Commit(ctx context.Context) error

	// Rollback aborts the transaction. Safe to call after Commit has
	// already succeeded or failed; implementations must make it a no-op in
	// that case.
	Rollback(ctx context.Context) error

	// End releases session resources (e.g. returns a pooled connection).
	// Always called exactly once per Begin, after Commit or Rollback.
	End(ctx context.Context)
}
