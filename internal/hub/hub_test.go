package hub_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erauner12/listd/internal/hub"
)

type fakeConn struct {
	mu       sync.Mutex
	received []any
	failWith error
}

func (f *fakeConn) Send(ctx context.Context, v any) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	f.received = append(f.received, v)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func TestBroadcast_DeliversToEveryAttachedConnection(t *testing.T) {
	h := hub.New()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Attach(a)
	h.Attach(b)
	h.Attach(c)

	if err := h.Broadcast(context.Background(), "hello"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	for i, conn := range []*fakeConn{a, b, c} {
		if conn.count() != 1 {
			t.Fatalf("connection %d did not receive the broadcast", i)
		}
	}
}

func TestBroadcast_OneDeadConnectionDoesNotBlockTheOthers(t *testing.T) {
	h := hub.New()
	healthy1 := &fakeConn{}
	dead := &fakeConn{failWith: errors.New("connection reset")}
	healthy2 := &fakeConn{}
	h.Attach(healthy1)
	h.Attach(dead)
	h.Attach(healthy2)

	err := h.Broadcast(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected the dead connection's error to surface")
	}
	if healthy1.count() != 1 || healthy2.count() != 1 {
		t.Fatalf("a failing connection must not prevent delivery to healthy ones")
	}
}

func TestDetach_RemovesConnectionFromFutureBroadcasts(t *testing.T) {
	h := hub.New()
	conn := &fakeConn{}
	id := h.Attach(conn)
	h.Detach(id)

	if err := h.Broadcast(context.Background(), "hello"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if conn.count() != 0 {
		t.Fatalf("detached connection should not receive further broadcasts")
	}
	if h.Count() != 0 {
		t.Fatalf("expected zero attached connections after detach")
	}
}

func TestSendTo_DeliversOnlyToNamedConnection(t *testing.T) {
	h := hub.New()
	origin := &fakeConn{}
	other := &fakeConn{}
	originID := h.Attach(origin)
	h.Attach(other)

	if err := h.SendTo(context.Background(), originID, "just for you"); err != nil {
		t.Fatalf("send to: %v", err)
	}
	if origin.count() != 1 {
		t.Fatalf("expected the origin connection to receive the message")
	}
	if other.count() != 0 {
		t.Fatalf("expected other connections to receive nothing")
	}
}
