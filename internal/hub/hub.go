// Package hub is the in-process connection registry that fans server-to-
// client messages out to every attached session. It is grounded on the
// teacher's map-of-sessions-behind-a-mutex shape (internal/httpapi/sessions.go's
// SessionStore, internal/mcpserver/server/session.go's SessionManager),
// generalized from "session metadata" to "a live outbound channel per
// connection" since here the registry's job is fan-out, not lookup.
package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Conn is anything the hub can push a message to. wsapi.Conn implements
// this over a nhooyr.io/websocket connection; tests can fake it.
type Conn interface {
	Send(ctx context.Context, v any) error
}

// Hub tracks every attached connection and broadcasts to all of them
// concurrently. Broadcast order across connections is unspecified — per
// spec §5/§9, clients are required to apply updatedNodes by id rather than
// by arrival order, so no ordering guarantee is needed here.
type Hub struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Conn
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{conns: make(map[uuid.UUID]Conn)}
}

// Attach registers a connection and returns its id for later Detach.
func (h *Hub) Attach(c Conn) uuid.UUID {
	id := uuid.New()
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
	return id
}

// Detach removes a connection, e.g. on disconnect.
func (h *Hub) Detach(id uuid.UUID) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// Broadcast sends v to every attached connection concurrently. A send
// failure on one connection (e.g. a dead socket) does not stop delivery to
// the others; once every send has finished, Broadcast returns the first
// send error (if any) for the caller to log.
func (h *Hub) Broadcast(ctx context.Context, v any) error {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	// Plain errgroup.Group, not WithContext: one dead connection must not
	// cancel delivery to the others, so every Send gets the caller's ctx
	// directly rather than a group-derived one that cancels on first error.
	var g errgroup.Group
	for _, c := range targets {
		c := c
		g.Go(func() error {
			return c.Send(ctx, v)
		})
	}
	return g.Wait()
}

// SendTo delivers v to a single connection only, used for originator-only
// error messages (spec §4.4).
func (h *Hub) SendTo(ctx context.Context, id uuid.UUID, v any) error {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.Send(ctx, v)
}

// Count returns the number of attached connections, mostly for health/debug
// logging.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
