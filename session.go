package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	maxSessions      = 2000
	heartbeatTimeout = 30 * time.Second
	sweepInterval    = 10 * time.Second
)

// Session tracks one connected participant's server-side state
type Session struct {
	ClientID      string
	UserID        int64 // 0 = guest
	Username      string
	Authenticated bool
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	Latency       float64 // smoothed RTT estimate, milliseconds
}

// SessionManager handles creation and lookup of sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a new SessionManager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session. Returns nil if the limit is reached.
func (sm *SessionManager) Create(name string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= maxSessions {
		return nil
	}

	now := time.Now()
	sess := &Session{
		ClientID:      uuid.NewString(),
		Username:      name,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	sm.sessions[sess.ClientID] = sess
	return sess
}

// Get returns a session by client ID
func (sm *SessionManager) Get(clientID string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[clientID]
}

// Remove deletes a session
func (sm *SessionManager) Remove(clientID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, clientID)
}

// Authenticate binds a user account to the session
func (sm *SessionManager) Authenticate(clientID string, userID int64, username string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sess, ok := sm.sessions[clientID]; ok {
		sess.UserID = userID
		sess.Username = username
		sess.Authenticated = true
	}
}

// Heartbeat records a heartbeat and folds the reported RTT into the
// smoothed latency estimate (EWMA, alpha 0.2).
func (sm *SessionManager) Heartbeat(clientID string, rtt int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sess, ok := sm.sessions[clientID]
	if !ok {
		return
	}
	sess.LastHeartbeat = time.Now()
	if rtt > 0 {
		if sess.Latency == 0 {
			sess.Latency = float64(rtt)
		} else {
			sess.Latency = sess.Latency*0.8 + float64(rtt)*0.2
		}
	}
}

// Latency returns the smoothed latency estimate for a session
func (sm *SessionManager) Latency(clientID string) float64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sess, ok := sm.sessions[clientID]; ok {
		return sess.Latency
	}
	return 0
}

// Stale returns sessions whose last heartbeat is older than the timeout.
// A missed heartbeat degrades the connection estimate but the connection
// itself is only torn down by the read pump.
func (sm *SessionManager) Stale() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	cutoff := time.Now().Add(-heartbeatTimeout)
	var stale []*Session
	for _, sess := range sm.sessions {
		if sess.LastHeartbeat.Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	return stale
}

// Count returns the number of active sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
