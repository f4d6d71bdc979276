package main

import (
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	sm := NewSessionManager()

	sess := sm.Create("Guest_abc123")
	if sess == nil {
		t.Fatal("session should be created")
	}
	if sm.Get(sess.ClientID) != sess {
		t.Error("lookup by client id should return the session")
	}
	if sess.Authenticated || sess.UserID != 0 {
		t.Error("fresh session should be an unauthenticated guest")
	}

	sm.Authenticate(sess.ClientID, 42, "alice")
	if got := sm.Get(sess.ClientID); !got.Authenticated || got.UserID != 42 || got.Username != "alice" {
		t.Errorf("authenticate should bind the account, got %+v", got)
	}

	sm.Remove(sess.ClientID)
	if sm.Get(sess.ClientID) != nil {
		t.Error("removed session should not resolve")
	}
}

func TestSessionLatencyEWMA(t *testing.T) {
	sm := NewSessionManager()
	sess := sm.Create("p")

	sm.Heartbeat(sess.ClientID, 100)
	if got := sm.Latency(sess.ClientID); got != 100 {
		t.Errorf("first sample seeds the estimate, got %v", got)
	}
	sm.Heartbeat(sess.ClientID, 200)
	if got := sm.Latency(sess.ClientID); got != 120 {
		t.Errorf("ewma of 100 then 200 should be 120, got %v", got)
	}
	// A zero RTT (missed ack) leaves the estimate alone
	sm.Heartbeat(sess.ClientID, 0)
	if got := sm.Latency(sess.ClientID); got != 120 {
		t.Errorf("zero rtt should not move the estimate, got %v", got)
	}
}

func TestSessionStaleSweep(t *testing.T) {
	sm := NewSessionManager()
	fresh := sm.Create("fresh")
	idle := sm.Create("idle")

	sm.mu.Lock()
	sm.sessions[idle.ClientID].LastHeartbeat = time.Now().Add(-heartbeatTimeout - time.Second)
	sm.mu.Unlock()

	stale := sm.Stale()
	if len(stale) != 1 || stale[0].ClientID != idle.ClientID {
		t.Fatalf("only the idle session should be stale, got %d", len(stale))
	}

	// Stale is advisory: the session stays registered until the transport
	// tears it down.
	if sm.Get(idle.ClientID) == nil || sm.Get(fresh.ClientID) == nil {
		t.Error("stale sweep must not remove sessions")
	}
}
