package main

import "sync"

// Frame event types drained by presentation consumers
const (
	EventAbilityCast = "ability_cast"
	EventDamage      = "damage"
	EventKill        = "kill"
)

// FrameEvent is one entry in the per-frame event log
type FrameEvent struct {
	Type string
	Data interface{}
}

// ChangeSet records which attributes changed for an entity this frame
type ChangeSet struct {
	Position  bool
	Health    bool
	Resource  bool
	Abilities bool
	Score     bool
}

func (c ChangeSet) Any() bool {
	return c.Position || c.Health || c.Resource || c.Abilities || c.Score
}

// SyncedEntity mirrors one entity: the authoritative snapshot plus, for
// controlled entities, a predicted position advanced ahead of the server.
type SyncedEntity struct {
	ID         string
	Auth       EntitySnapshot
	Controlled bool

	PredictedX float64
	PredictedY float64
	InputDX    float64
	InputDY    float64

	// Active correction toward the authoritative point
	correcting    bool
	corrTargetX   float64
	corrTargetY   float64
	corrStepX     float64
	corrStepY     float64
	corrTicksLeft int

	changes ChangeSet
}

// EffectiveX returns the render position (predicted for controlled entities)
func (s *SyncedEntity) EffectiveX() float64 {
	if s.Controlled {
		return s.PredictedX
	}
	return s.Auth.X
}

func (s *SyncedEntity) EffectiveY() float64 {
	if s.Controlled {
		return s.PredictedY
	}
	return s.Auth.Y
}

// Correcting reports whether a reconciliation interpolation is in flight
func (s *SyncedEntity) Correcting() bool { return s.correcting }

// Synchronizer maintains local mirrors of match entities. Authoritative
// updates arrive asynchronously, are buffered, and apply at the start of the
// next tick, never mid-tick. Prediction covers position only; every other
// field is overwritten unconditionally from the authoritative snapshot.
type Synchronizer struct {
	mu       sync.Mutex
	cfg      SyncConfig
	entities map[string]*SyncedEntity
	pending  []GameStateUpdate
	lastSeq  uint64
	events   []FrameEvent
	tick     uint64
	scores   map[int]int
}

// NewSynchronizer creates an empty synchronizer
func NewSynchronizer(cfg SyncConfig) *Synchronizer {
	return &Synchronizer{
		cfg:      cfg,
		entities: make(map[string]*SyncedEntity),
		scores:   make(map[int]int),
	}
}

// Track registers an entity of interest. Controlled entities get predicted
// movement; others follow the authoritative snapshot directly.
func (s *Synchronizer) Track(id string, controlled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[id]; !ok {
		s.entities[id] = &SyncedEntity{ID: id, Controlled: controlled}
	}
}

// Untrack drops an entity mirror
func (s *Synchronizer) Untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, id)
}

// Buffer queues an authoritative update for the next tick
func (s *Synchronizer) Buffer(update GameStateUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, update)
}

// SetInput records the controlled entity's current movement direction
func (s *Synchronizer) SetInput(id string, dx, dy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[id]; ok && e.Controlled {
		e.InputDX, e.InputDY = Normalize(dx, dy)
	}
}

// AddEvent appends to the per-frame event log
func (s *Synchronizer) AddEvent(evt FrameEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

// Tick advances one fixed-rate step: apply buffered authoritative updates,
// advance prediction, then step any active corrections.
func (s *Synchronizer) Tick(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++

	pending := s.pending
	s.pending = nil
	for _, u := range pending {
		s.applyLocked(u)
	}

	for _, e := range s.entities {
		if e.Controlled && e.Auth.Alive {
			if e.InputDX != 0 || e.InputDY != 0 {
				e.PredictedX += e.InputDX * s.cfg.MoveSpeed * dt
				e.PredictedY += e.InputDY * s.cfg.MoveSpeed * dt
				e.changes.Position = true
			}
		}
		if e.correcting {
			e.corrTicksLeft--
			if e.corrTicksLeft <= 0 {
				// Final step lands exactly on the authoritative point
				e.PredictedX = e.corrTargetX
				e.PredictedY = e.corrTargetY
				e.correcting = false
			} else {
				e.PredictedX += e.corrStepX
				e.PredictedY += e.corrStepY
			}
			e.changes.Position = true
		}
	}
}

// applyLocked merges one authoritative update. Out-of-order updates are
// discarded via the strictly increasing sequence number.
func (s *Synchronizer) applyLocked(u GameStateUpdate) {
	if u.Seq <= s.lastSeq {
		return
	}
	s.lastSeq = u.Seq

	for side, score := range u.Scores {
		if s.scores[side] != score {
			s.scores[side] = score
			for _, e := range s.entities {
				e.changes.Score = true
			}
		}
	}

	for _, snap := range u.Entities {
		e, ok := s.entities[snap.ID]
		if !ok {
			continue
		}
		prev := e.Auth

		// Non-positional fields are always overwritten; prediction is
		// position-only.
		e.Auth = snap
		if prev.HP != snap.HP || prev.Alive != snap.Alive {
			e.changes.Health = true
		}
		if prev.Mana != snap.Mana {
			e.changes.Resource = true
		}
		if abilitiesChanged(prev.Abilities, snap.Abilities) {
			e.changes.Abilities = true
		}
		if prev.X != snap.X || prev.Y != snap.Y {
			e.changes.Position = true
		}

		if !e.Controlled {
			continue
		}
		if prev.ID == "" {
			// First snapshot seeds the prediction
			e.PredictedX, e.PredictedY = snap.X, snap.Y
			continue
		}
		if !snap.Alive {
			// Death cancels prediction outright
			e.PredictedX, e.PredictedY = snap.X, snap.Y
			e.correcting = false
			continue
		}

		div := Distance(e.PredictedX, e.PredictedY, snap.X, snap.Y)
		if div > s.cfg.CorrectionThreshold {
			ticks := s.cfg.CorrectionTicks
			if ticks < 1 {
				ticks = 1
			}
			e.correcting = true
			e.corrTargetX = snap.X
			e.corrTargetY = snap.Y
			e.corrStepX = (snap.X - e.PredictedX) / float64(ticks)
			e.corrStepY = (snap.Y - e.PredictedY) / float64(ticks)
			e.corrTicksLeft = ticks
		}
	}
}

func abilitiesChanged(a, b []AbilityStatus) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

// Entity returns the mirror for one entity, or nil
func (s *Synchronizer) Entity(id string) *SyncedEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

// GameState returns the effective snapshots of all tracked entities
func (s *Synchronizer) GameState() []EntitySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntitySnapshot, 0, len(s.entities))
	for _, e := range s.entities {
		snap := e.Auth
		snap.X = e.EffectiveX()
		snap.Y = e.EffectiveY()
		out = append(out, snap)
	}
	return out
}

// Scores returns the last known side scores
func (s *Synchronizer) Scores() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int, len(s.scores))
	for k, v := range s.scores {
		out[k] = v
	}
	return out
}

// FrameEvents returns the current frame's event log in order
func (s *Synchronizer) FrameEvents() []FrameEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FrameEvent(nil), s.events...)
}

// Changes returns an entity's change-set for this frame
func (s *Synchronizer) Changes(id string) ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[id]; ok {
		return e.changes
	}
	return ChangeSet{}
}

// ClearFrame drops the event log and resets every change-set. The
// presentation layer calls this exactly once per rendered frame.
func (s *Synchronizer) ClearFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
	for _, e := range s.entities {
		e.changes = ChangeSet{}
	}
}

// BandwidthEstimate returns expected inbound bytes/second for a given
// entity count at the given update rate.
func (s *Synchronizer) BandwidthEstimate(entityCount int, updatesPerSec float64) float64 {
	perMessage := s.cfg.OverheadBytes + s.cfg.EntityBytes*entityCount
	return float64(perMessage) * updatesPerSec
}
