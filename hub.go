package main

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub manages all connected clients and routes them to matches
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	// participantID (session client id) -> connection
	participants map[string]*Client

	sessions *SessionManager

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	cfg    *Config
	db     *DB
	auth   *Auth
	events *Events
	log    *zap.Logger

	matchmaker *Matchmaker
	matches    *MatchManager
}

// NewHub wires the server's core services together
func NewHub(cfg *Config, db *DB, log *zap.Logger) *Hub {
	h := &Hub{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client, 64),
		unregister:   make(chan *Client, 64),
		participants: make(map[string]*Client),
		sessions:     NewSessionManager(),
		ipConns:      make(map[string]int),
		cfg:          cfg,
		db:           db,
		auth:         NewAuth(db, log),
		events:       NewEvents(db, log),
		log:          log,
	}
	h.matches = NewMatchManager(h)
	// Match startup re-enters the hub and match manager, and onMatch fires
	// under the matchmaker's lock, so hand it off to a goroutine.
	h.matchmaker = NewMatchmaker(cfg.Queue, h.events, log,
		func(m *Match) { go h.matches.Start(m) },
		h.NotifyParticipant)
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events and periodically sweeps for
// sessions that stopped heartbeating. A stale session is only logged; the
// read pump's deadline owns teardown.
func (h *Hub) Run() {
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-sweep.C:
			for _, sess := range h.sessions.Stale() {
				h.log.Warn("session heartbeat stale",
					zap.String("client_id", sess.ClientID),
					zap.String("username", sess.Username),
					zap.Time("last_heartbeat", sess.LastHeartbeat))
			}

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if client.participantID != "" {
					delete(h.participants, client.participantID)
				}
				close(client.send)
			}
			h.mu.Unlock()

			if client.participantID != "" {
				h.matchmaker.Leave(client.participantID)
				if w := h.matches.WorldFor(client.participantID); w != nil {
					w.RemoveClient(client.participantID)
				}
				h.sessions.Remove(client.participantID)
				h.events.Track(EvtDisconnect, client.participantID, "", "")
			}
		}
	}
}

// BindParticipant associates a connected session with its client so
// server-initiated pushes can reach it.
func (h *Hub) BindParticipant(participantID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.participants[participantID] = client
}

// ParticipantClient returns the connection for an online participant
func (h *Hub) ParticipantClient(participantID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.participants[participantID]
}

// NotifyParticipant delivers a server push to one participant. Safe to call
// for participants that have already disconnected.
func (h *Hub) NotifyParticipant(participantID string, env Envelope) {
	if c := h.ParticipantClient(participantID); c != nil {
		c.SendJSON(env)
	}
}

// IsOnline checks whether an authenticated user has a live session
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.participants {
		if c.userID == userID {
			return true
		}
	}
	return false
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

// Shutdown stops matchmaking, running worlds and the event writer
func (h *Hub) Shutdown() {
	h.matchmaker.Stop()
	h.matches.StopAll()
	h.events.Stop()
}

// MatchManager owns the running worlds and handles match lifecycle:
// creation from formed matches, participant wiring, end-of-match rating
// settlement and persistence.
type MatchManager struct {
	mu            sync.RWMutex
	hub           *Hub
	worlds        map[string]*World // matchID -> world
	byParticipant map[string]*World

	validator *Validator
}

// NewMatchManager creates the manager with a shared validator whose
// suspicion reports are persisted and pushed to the flagged participant.
func NewMatchManager(h *Hub) *MatchManager {
	mm := &MatchManager{
		hub:           h,
		worlds:        make(map[string]*World),
		byParticipant: make(map[string]*World),
	}
	suspicion := NewSuspicionTracker(h.cfg.AntiCheat.ReportThreshold, mm.onCheatReport, h.log)
	mm.validator = NewValidator(h.cfg.AntiCheat, DefaultAbilities, suspicion)
	return mm
}

// Start spins up a world for a formed match and notifies its participants
func (mm *MatchManager) Start(m *Match) {
	w := NewWorld(m, mm.hub.cfg.World, mm.hub.cfg.Sync, DefaultAbilities, mm.validator, mm.hub.log, mm.settle)

	mm.mu.Lock()
	mm.worlds[m.ID] = w
	for _, pid := range m.ParticipantIDs() {
		mm.byParticipant[pid] = w
	}
	mm.mu.Unlock()

	found := NewEnvelope(0, MsgMatchFound, m.FoundMsg())
	for _, pid := range m.ParticipantIDs() {
		c := mm.hub.ParticipantClient(pid)
		if c == nil {
			continue
		}
		c.SetMatch(m.ID)
		w.SetClient(pid, c)
		c.SendJSON(found)
		c.SendJSON(NewEnvelope(0, MsgMatchStart, MatchStartMsg{
			MatchID: m.ID,
			Mode:    m.Mode,
			Team:    m.SideOf(pid),
			TickHz:  TickRate,
			TimeCap: mm.hub.cfg.World.TimeLimit,
		}))
		mm.hub.events.Track(EvtMatchStart, pid, m.ID, m.Mode)
	}

	m.Status = MatchLive
	go w.Run()
}

// WorldFor returns the world a participant is playing in, nil if none
func (mm *MatchManager) WorldFor(participantID string) *World {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.byParticipant[participantID]
}

// World returns a running world by match ID
func (mm *MatchManager) World(matchID string) *World {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.worlds[matchID]
}

// ActiveMatches returns the number of running worlds
func (mm *MatchManager) ActiveMatches() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.worlds)
}

// StopAll tears down every running world
func (mm *MatchManager) StopAll() {
	mm.mu.Lock()
	worlds := make([]*World, 0, len(mm.worlds))
	for _, w := range mm.worlds {
		worlds = append(worlds, w)
	}
	mm.mu.Unlock()
	for _, w := range worlds {
		w.Stop()
	}
}

// settle runs once when a world's match concludes: ratings are updated
// against the average opposing rating, results persisted, and the final
// scoreboard broadcast. Called from the world's tick goroutine.
func (mm *MatchManager) settle(w *World, winnerSide int) {
	m := w.Match()
	m.Status = MatchEnded

	mm.mu.Lock()
	delete(mm.worlds, m.ID)
	for _, pid := range m.ParticipantIDs() {
		delete(mm.byParticipant, pid)
	}
	mm.mu.Unlock()

	stats := w.Stats()
	byID := make(map[string]*MatchEndStats, len(stats))
	for i := range stats {
		byID[stats[i].ParticipantID] = &stats[i]
	}

	avgA := avgRating(m.SideA)
	avgB := avgRating(m.SideB)

	settleSide := func(side []RatedParticipant, sideID int, oppAvg int) {
		actual := ResultDraw
		switch {
		case winnerSide == sideID:
			actual = ResultWin
		case winnerSide != SideNone:
			actual = ResultLoss
		}
		for _, p := range side {
			line := byID[p.ID]
			if line == nil {
				continue
			}
			line.RatingBefore = p.Rating
			line.RatingAfter = p.Rating

			sess := mm.hub.sessions.Get(p.ID)
			if sess == nil || sess.UserID == 0 {
				continue // guests carry no persistent rating
			}
			rec, err := mm.hub.db.GetRating(sess.UserID)
			if err != nil || rec == nil {
				mm.hub.log.Warn("settlement: no rating record",
					zap.String("participant", p.ID), zap.Error(err))
				continue
			}
			after := ApplyResult(rec.Rating, oppAvg, rec.GamesPlayed, actual)
			line.RatingBefore = rec.Rating
			line.RatingAfter = after
			if err := mm.hub.db.SettleRating(sess.UserID, after, actual); err != nil {
				mm.hub.log.Error("settlement: rating update failed",
					zap.Int64("user", sess.UserID), zap.Error(err))
			}
			if err := mm.hub.db.RecordMatchPlayer(MatchPlayerRow{
				MatchID:      m.ID,
				PlayerID:     sess.UserID,
				Side:         sideID,
				Kills:        line.Kills,
				Deaths:       line.Deaths,
				DamageDealt:  line.DamageDealt,
				RatingBefore: line.RatingBefore,
				RatingAfter:  line.RatingAfter,
			}); err != nil {
				mm.hub.log.Error("settlement: match line failed", zap.Error(err))
			}
		}
	}

	duration := w.MatchTime()
	if err := mm.hub.db.RecordMatch(m.ID, m.Mode, duration, winnerSide, m.Quality); err != nil {
		mm.hub.log.Error("settlement: match record failed", zap.Error(err))
	}

	settleSide(m.SideA, SideA, avgB)
	settleSide(m.SideB, SideB, avgA)

	end := NewEnvelope(0, MsgMatchEnd, MatchEndMsg{
		MatchID:    m.ID,
		WinnerSide: winnerSide,
		Duration:   duration,
		Stats:      stats,
	})
	for _, pid := range m.ParticipantIDs() {
		mm.hub.NotifyParticipant(pid, end)
		mm.hub.events.Track(EvtMatchEnd, pid, m.ID, fmt.Sprintf("winner=%d", winnerSide))
		if c := mm.hub.ParticipantClient(pid); c != nil {
			c.SetMatch("")
		}
		mm.validator.Suspicion().Remove(pid)
	}

	mm.hub.log.Info("match settled",
		zap.String("match", m.ID),
		zap.Int("winner", winnerSide),
		zap.Float64("duration", duration))
}

// onCheatReport persists a suspicion report and surfaces it to the
// flagged participant's connection. Advisory only: nothing is rejected.
func (mm *MatchManager) onCheatReport(report CheatReportMsg) {
	mm.hub.log.Warn("cheat report",
		zap.String("participant", report.ParticipantID),
		zap.Int("points", report.Points),
		zap.String("severity", report.Severity),
		zap.Strings("flags", report.Flags))
	if err := mm.hub.db.RecordCheatReport(report); err != nil {
		mm.hub.log.Error("cheat report persist failed", zap.Error(err))
	}
	mm.hub.events.Track(EvtCheatReport, report.ParticipantID, "", report.Severity)
	mm.hub.NotifyParticipant(report.ParticipantID, NewEnvelope(0, MsgCheatReport, report))
}
