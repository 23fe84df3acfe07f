package ws

import (
	"testing"
	"time"
)

func newTestHub() *Hub {
	return &Hub{
		clients:      make(map[string]*ClientConnection),
		pingInterval: 30 * time.Second,
		pongTimeout:  90 * time.Second,
	}
}

func TestHubTouchSessionExtendsDeadline(t *testing.T) {
	h := newTestHub()
	stale := time.Now().Add(-time.Hour)
	h.clients["s1"] = &ClientConnection{SessionID: "s1", UserID: "bob", LastPong: stale}

	before := time.Now()
	deadline := h.touchSession("s1")

	// The returned deadline is a full pong timeout from now, so each
	// pong keeps the read loop alive past the initial deadline.
	if deadline.Before(before.Add(h.pongTimeout)) {
		t.Errorf("deadline not extended: %v, want at least %v", deadline, before.Add(h.pongTimeout))
	}
	if !h.clients["s1"].LastPong.After(stale) {
		t.Error("LastPong not refreshed")
	}
}

func TestHubTouchSessionUnknownSession(t *testing.T) {
	h := newTestHub()

	deadline := h.touchSession("gone")
	if deadline.Before(time.Now()) {
		t.Errorf("expected a future deadline even for an unregistered session, got %v", deadline)
	}
}

func TestHubIsOnlineAndCount(t *testing.T) {
	h := newTestHub()
	h.clients["s1"] = &ClientConnection{SessionID: "s1", UserID: "bob"}
	h.clients["s2"] = &ClientConnection{SessionID: "s2", UserID: "bob"}

	if !h.IsOnline("bob") {
		t.Error("bob should be online with two sessions")
	}
	if h.IsOnline("alice") {
		t.Error("alice should be offline")
	}
	if got := h.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}
