package wsapi

import (
	"testing"

	"github.com/google/uuid"
)

func TestConnLimiter_AllowsUpToBurstThenBlocks(t *testing.T) {
	l := newConnLimiter(RateLimitConfig{WindowSeconds: 60, MaxRequests: 30, Burst: 3})
	id := uuid.New()

	for i := 0; i < 3; i++ {
		if !l.allow(id) {
			t.Fatalf("expected request %d within burst to be allowed", i)
		}
	}
	if l.allow(id) {
		t.Fatalf("expected the request past the burst to be rate limited")
	}
}

func TestConnLimiter_TracksBucketsIndependentlyPerConnection(t *testing.T) {
	l := newConnLimiter(RateLimitConfig{WindowSeconds: 60, MaxRequests: 30, Burst: 1})
	a, b := uuid.New(), uuid.New()

	if !l.allow(a) {
		t.Fatalf("expected first request from connection a to be allowed")
	}
	if l.allow(a) {
		t.Fatalf("expected second immediate request from connection a to be rate limited")
	}
	if !l.allow(b) {
		t.Fatalf("connection b's bucket must be independent of connection a's")
	}
}

func TestConnLimiter_ForgetResetsTheBucket(t *testing.T) {
	l := newConnLimiter(RateLimitConfig{WindowSeconds: 60, MaxRequests: 30, Burst: 1})
	id := uuid.New()

	if !l.allow(id) {
		t.Fatalf("expected the first request to be allowed")
	}
	l.forget(id)
	if !l.allow(id) {
		t.Fatalf("expected a fresh bucket to allow a request right after forget")
	}
}
