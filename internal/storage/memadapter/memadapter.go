// Package memadapter is an in-memory storage.Adapter used to exercise the
// mutation engine's concurrency contract with real goroutines and a real
// mutex, without a live Postgres. It is a test double, not a production
// backend: the adapter lock is held only while Begin copies the shared map
// into the session's snapshot and while Commit validates and applies, so
// attempts run in parallel between those points. Commit-time write-conflict
// detection covers the rows a session wrote: if a row it updated, deleted or
// inserted was changed (or created) by a session that committed first,
// Commit reports ErrSerializationConflict. Rows that were only read (for
// example FindHead finding no head) are not re-validated at Commit.
package memadapter

import (
	"context"
	"sync"

	"github.com/erauner12/listd/internal/node"
	"github.com/erauner12/listd/internal/storage"
	"github.com/google/uuid"
)

// Adapter is the in-memory storage.Adapter test double.
type Adapter struct {
	mu    sync.Mutex
	nodes map[uuid.UUID]node.Node
}

// New creates an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{nodes: make(map[uuid.UUID]node.Node)}
}

func (a *Adapter) Begin(ctx context.Context) (storage.Session, error) {
	a.mu.Lock()
	snapshot := make(map[uuid.UUID]node.Node, len(a.nodes))
	for id, n := range a.nodes {
		snapshot[id] = n
	}
	a.mu.Unlock()
	return &session{adapter: a, view: snapshot, writes: map[uuid.UUID]*node.Node{}}, nil
}

func (a *Adapter) ListAll(ctx context.Context) ([]node.Node, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]node.Node, 0, len(a.nodes))
	for _, n := range a.nodes {
		out = append(out, n)
	}
	return out, nil
}

// session is one attempt's transactional view: reads come from a snapshot
// taken at Begin, writes are staged locally and only applied to the shared
// map at Commit, after re-validating every staged write's predicate against
// the *current* shared state. That re-validation is what turns a lost race
// into storage.ErrSerializationConflict instead of a silent lost update.
type session struct {
	adapter *Adapter
	view    map[uuid.UUID]node.Node

	writes map[uuid.UUID]*node.Node         // staged updates/inserts, nil value = staged delete
	preds  map[uuid.UUID]storage.Predicate  // predicate each staged write/delete must still satisfy at commit
	ended  bool
}

func (s *session) Find(ctx context.Context, id uuid.UUID) (*node.Node, error) {
	if w, ok := s.writes[id]; ok {
		if w == nil {
			return nil, nil
		}
		cp := *w
		return &cp, nil
	}
	if n, ok := s.view[id]; ok {
		cp := n
		return &cp, nil
	}
	return nil, nil
}

func (s *session) FindHead(ctx context.Context) (*node.Node, error) {
	merged := make(map[uuid.UUID]node.Node, len(s.view))
	for id, n := range s.view {
		merged[id] = n
	}
	for id, w := range s.writes {
		if w == nil {
			delete(merged, id)
			continue
		}
		merged[id] = *w
	}
	for _, n := range merged {
		if n.Prev == nil {
			cp := n
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *session) Insert(ctx context.Context, n node.Node) error {
	cp := n
	s.stagePred(n.ID, storage.VersionOnly(-1)) // inserts have no pre-existing version to re-validate
	s.writes[n.ID] = &cp
	return nil
}

func (s *session) ConditionalUpdate(ctx context.Context, id uuid.UUID, pred storage.Predicate, mut storage.Mutation) (*node.Node, error) {
	cur, err := s.Find(ctx, id)
	if err != nil || cur == nil {
		return nil, err
	}
	if !matches(*cur, pred) {
		return nil, nil
	}

	updated := *cur
	if mut.SetPrev {
		updated.Prev = mut.Prev
	}
	if mut.SetNext {
		updated.Next = mut.Next
	}
	updated.Version = cur.Version + 1

	s.stagePred(id, pred)
	s.writes[id] = &updated

	out := updated
	return &out, nil
}

func (s *session) ConditionalDelete(ctx context.Context, id uuid.UUID, pred storage.Predicate) (bool, error) {
	cur, err := s.Find(ctx, id)
	if err != nil || cur == nil {
		return false, err
	}
	if !matches(*cur, pred) {
		return false, nil
	}
	s.stagePred(id, pred)
	s.writes[id] = nil
	return true, nil
}

func (s *session) stagePred(id uuid.UUID, pred storage.Predicate) {
	if s.preds == nil {
		s.preds = map[uuid.UUID]storage.Predicate{}
	}
	s.preds[id] = pred
}

// Commit re-validates every staged write/delete's predicate against the
// live shared state (which may have moved since Begin's snapshot was taken)
// and, only if every predicate still holds, applies all staged writes
// atomically under the adapter lock. Any predicate that no longer holds is
// reported as storage.ErrSerializationConflict, mirroring a Postgres
// SERIALIZABLE commit abort.
func (s *session) Commit(ctx context.Context) error {
	if s.ended {
		return nil
	}
	s.adapter.mu.Lock()
	defer s.adapter.mu.Unlock()

	for id, pred := range s.preds {
		if pred.Version == -1 {
			if _, exists := s.adapter.nodes[id]; exists {
				return storage.ErrSerializationConflict
			}
			continue
		}
		live, exists := s.adapter.nodes[id]
		if !exists || !matches(live, pred) {
			return storage.ErrSerializationConflict
		}
	}

	for id, w := range s.writes {
		if w == nil {
			delete(s.adapter.nodes, id)
			continue
		}
		s.adapter.nodes[id] = *w
	}
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	s.writes = map[uuid.UUID]*node.Node{}
	s.preds = nil
	return nil
}

func (s *session) End(ctx context.Context) {
	s.ended = true
}

func matches(n node.Node, pred storage.Predicate) bool {
	if n.Version != pred.Version {
		return false
	}
	if pred.CheckPrev && !samePtr(n.Prev, pred.Prev) {
		return false
	}
	if pred.CheckNext && !samePtr(n.Next, pred.Next) {
		return false
	}
	return true
}

func samePtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
