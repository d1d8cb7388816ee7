// Package wsapi is the Session Handler boundary (spec §4.4): it receives
// addNode/removeNode frames from a client over a nhooyr.io/websocket
// connection, drives the mutation engine through the retry driver, and
// fans results out through the hub. It owns message serialization; the
// mutation engine it calls returns plain Go records.
package wsapi

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/erauner12/listd/internal/hub"
	"github.com/erauner12/listd/internal/mutation"
	"github.com/erauner12/listd/internal/retry"
	"github.com/erauner12/listd/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

// Handler upgrades HTTP connections to WebSocket and runs the per-session
// read loop described by spec §4.4.
type Handler struct {
	Adapter       storage.Adapter
	Hub           *hub.Hub
	MaxAttempts   int
	BackoffPolicy backoff.BackOff // nil => retry.NoBackoff()
	AcceptOptions *websocket.AcceptOptions
	RateLimit     RateLimitConfig

	limiterOnce sync.Once
	limiter     *connLimiter
}

func (h *Handler) limiterFor() *connLimiter {
	h.limiterOnce.Do(func() {
		cfg := h.RateLimit
		if cfg.MaxRequests == 0 {
			cfg = DefaultRateLimitConfig
		}
		h.limiter = newConnLimiter(cfg)
	})
	return h.limiter
}

// ServeHTTP upgrades the request, sends the initial snapshot, and blocks
// until the connection closes or errors.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, h.AcceptOptions)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer c.CloseNow()

	conn := newWSConn(c)
	ctx := r.Context()

	id := h.Hub.Attach(conn)
	defer h.Hub.Detach(id)
	defer h.limiterFor().forget(id)

	log.Info().Str("connId", id.String()).Int("connections", h.Hub.Count()).Msg("session attached")

	if err := h.sendSnapshot(ctx, conn); err != nil {
		log.Warn().Err(err).Str("connId", id.String()).Msg("failed to send initial snapshot")
		return
	}

	for {
		msg, err := conn.readMessage(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				log.Warn().Err(err).Str("connId", id.String()).Msg("session read error")
			}
			log.Info().Str("connId", id.String()).Msg("session detached")
			return
		}
		h.dispatch(ctx, conn, id, msg)
	}
}

func (h *Handler) sendSnapshot(ctx context.Context, conn *wsConn) error {
	nodes, err := h.Adapter.ListAll(ctx)
	if err != nil {
		return err
	}
	return conn.Send(ctx, newNodesMessage(nodes))
}

func (h *Handler) dispatch(ctx context.Context, origin *wsConn, connID uuid.UUID, msg clientMessage) {
	switch msg.Type {
	case typeAddNode:
		if !h.limiterFor().allow(connID) {
			_ = origin.Send(ctx, newErrorMessage(msg.Type, "rate limit exceeded, slow down"))
			return
		}
		h.handleAddNode(ctx, origin, msg.Prev)
	case typeRemoveNode:
		if !h.limiterFor().allow(connID) {
			_ = origin.Send(ctx, newErrorMessage(msg.Type, "rate limit exceeded, slow down"))
			return
		}
		h.handleRemoveNode(ctx, origin, msg.ID)
	default:
		_ = origin.Send(ctx, newErrorMessage(msg.Type, "unknown message type"))
	}
}

func (h *Handler) handleAddNode(ctx context.Context, origin *wsConn, prev *uuid.UUID) {
	result, err := retry.Do(ctx, h.Adapter, "addNode", h.MaxAttempts, h.BackoffPolicy,
		func(ctx context.Context, s storage.Session) (mutation.InsertResult, error) {
			return mutation.InsertAfter(ctx, s, prev)
		})
	if err != nil {
		h.reportError(ctx, origin, "addNode", err)
		return
	}

	if err := h.Hub.Broadcast(ctx, newNodeAddedMessage(result)); err != nil {
		log.Warn().Err(err).Msg("broadcast of nodeAdded reached one or more dead connections")
	}
}

func (h *Handler) handleRemoveNode(ctx context.Context, origin *wsConn, id *uuid.UUID) {
	if id == nil {
		_ = origin.Send(ctx, newErrorMessage("removeNode", "node id is required"))
		return
	}

	result, err := retry.Do(ctx, h.Adapter, "removeNode", h.MaxAttempts, h.BackoffPolicy,
		func(ctx context.Context, s storage.Session) (mutation.DeleteResult, error) {
			return mutation.Delete(ctx, s, *id)
		})
	if err != nil {
		h.reportError(ctx, origin, "removeNode", err)
		return
	}

	if err := h.Hub.Broadcast(ctx, newNodeRemovedMessage(result)); err != nil {
		log.Warn().Err(err).Msg("broadcast of nodeRemoved reached one or more dead connections")
	}
}

// reportError sends an error message to the originating connection only —
// per spec §7, a CONFLICT never touches other sessions' view of the list.
func (h *Handler) reportError(ctx context.Context, origin *wsConn, operation string, err error) {
	var conflictErr *mutation.ConflictError
	message := err.Error()
	if errors.As(err, &conflictErr) {
		message = conflictErr.Message
	} else {
		log.Error().Err(err).Str("operation", operation).Msg("unexpected mutation error")
	}
	_ = origin.Send(ctx, newErrorMessage(operation, message))
}
