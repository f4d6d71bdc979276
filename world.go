package main

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	TickRate       = 60 // simulation ticks per second
	BroadcastRate  = 30 // state broadcasts per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = TickRate / BroadcastRate
)

// Broadcaster delivers messages to one participant's connection
type Broadcaster interface {
	SendJSON(env Envelope)
	SendBinary(data []byte)
}

// queuedInput buffers inbound inputs so they apply at the start of the next
// tick, never mid-tick.
type queuedInput struct {
	participantID string
	movement      *MovementInputMsg
	ability       *AbilityUseMsg
	receivedAt    time.Time
}

// World runs the authoritative simulation for one live match
type World struct {
	mu        sync.RWMutex
	match     *Match
	cfg       WorldConfig
	moveSpeed float64
	catalog   AbilityCatalog
	validator *Validator
	log       *zap.Logger

	entities map[string]*Entity
	clients  map[string]Broadcaster
	lastSeen map[string]time.Time // participant -> last movement report, for velocity checks

	pending   []queuedInput
	tick      uint64
	seq       uint64
	matchTime float64
	scores    map[int]int
	running   bool
	ended     bool
	stop      chan struct{}

	onEnd func(w *World, winnerSide int)
}

// NewWorld builds the runtime for a formed match. onEnd fires once, from the
// tick goroutine, when the match concludes.
func NewWorld(m *Match, cfg WorldConfig, syncCfg SyncConfig, catalog AbilityCatalog, validator *Validator, log *zap.Logger, onEnd func(*World, int)) *World {
	w := &World{
		match:     m,
		cfg:       cfg,
		moveSpeed: syncCfg.MoveSpeed,
		catalog:   catalog,
		validator: validator,
		log:       log,
		entities:  make(map[string]*Entity),
		clients:   make(map[string]Broadcaster),
		lastSeen:  make(map[string]time.Time),
		scores:    map[int]int{SideA: 0, SideB: 0},
		stop:      make(chan struct{}),
	}

	// Side A spawns on the left edge band, side B on the right
	for i, p := range m.SideA {
		x := cfg.Width * 0.1
		y := cfg.Height * (float64(i) + 1) / (float64(len(m.SideA)) + 1)
		w.entities[p.ID] = NewEntity(p.ID, SideA, x, y, catalog)
	}
	for i, p := range m.SideB {
		x := cfg.Width * 0.9
		y := cfg.Height * (float64(i) + 1) / (float64(len(m.SideB)) + 1)
		w.entities[p.ID] = NewEntity(p.ID, SideB, x, y, catalog)
	}
	w.onEnd = onEnd
	return w
}

// Match returns the underlying match record
func (w *World) Match() *Match { return w.match }

// Run starts the fixed-rate tick loop
func (w *World) Run() {
	w.mu.Lock()
	w.running = true
	w.match.Status = MatchLive
	w.mu.Unlock()

	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.update()
		case <-w.stop:
			return
		}
	}
}

// Stop terminates the tick loop
func (w *World) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.running = false
		close(w.stop)
	}
}

// SetClient attaches a participant's connection
func (w *World) SetClient(participantID string, client Broadcaster) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clients[participantID] = client
}

// RemoveClient detaches a connection; the entity stays and idles
func (w *World) RemoveClient(participantID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.clients, participantID)
}

// HandleMovement buffers a movement input. The client's claimed predicted
// position, when present, is checked for plausibility before the direction
// is accepted; validation is advisory and never blocks the input.
func (w *World) HandleMovement(participantID string, msg MovementInputMsg) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entities[participantID]; !ok {
		return
	}
	w.pending = append(w.pending, queuedInput{
		participantID: participantID,
		movement:      &msg,
		receivedAt:    time.Now(),
	})
}

// HandleAbility buffers an ability use request
func (w *World) HandleAbility(participantID string, msg AbilityUseMsg) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entities[participantID]; !ok {
		return
	}
	w.pending = append(w.pending, queuedInput{
		participantID: participantID,
		ability:       &msg,
		receivedAt:    time.Now(),
	})
}

// EntitySnapshot returns the current authoritative snapshot of one entity
func (w *World) EntitySnapshot(participantID string) (EntitySnapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[participantID]
	if !ok {
		return EntitySnapshot{}, false
	}
	return e.Snapshot(), true
}

// update runs one tick: drain buffered inputs first, then advance entities,
// then broadcast on the broadcast cadence.
func (w *World) update() {
	w.mu.Lock()

	dt := 1.0 / float64(TickRate)
	w.tick++
	w.matchTime += dt

	pending := w.pending
	w.pending = nil
	for _, in := range pending {
		w.applyInputLocked(in)
	}

	for _, e := range w.entities {
		e.Update(dt, w.cfg)
	}

	var done bool
	var winner int
	if !w.ended {
		winner, done = w.checkEndLocked()
		if done {
			w.ended = true
			w.match.Status = MatchEnded
		}
	}

	broadcast := w.tick%BroadcastEvery == 0
	var frame []byte
	if broadcast {
		frame = w.encodeStateLocked()
	}
	w.mu.Unlock()

	if broadcast && frame != nil {
		w.broadcastBinary(frame)
	}
	if done {
		if w.onEnd != nil {
			w.onEnd(w, winner)
		}
		w.Stop()
	}
}

func (w *World) applyInputLocked(in queuedInput) {
	e := w.entities[in.participantID]
	if e == nil {
		return
	}
	switch {
	case in.movement != nil:
		mv := in.movement
		// Plausibility check on the client's claimed position, if it
		// reports one. Elapsed time since the previous report bounds the
		// legal travel distance.
		if mv.PX != 0 || mv.PY != 0 {
			elapsed := 0.0
			if last, ok := w.lastSeen[in.participantID]; ok {
				elapsed = in.receivedAt.Sub(last).Seconds()
			}
			w.validator.CheckMovement(in.participantID, e.X, e.Y, mv.PX, mv.PY, elapsed)
		}
		w.lastSeen[in.participantID] = in.receivedAt
		e.SetDirection(mv.DX, mv.DY, w.moveSpeed)

	case in.ability != nil:
		w.applyAbilityLocked(e, *in.ability)
	}
}

func (w *World) applyAbilityLocked(caster *Entity, use AbilityUseMsg) {
	// Advisory validation against the authoritative snapshot; the cast
	// itself is still gated by authoritative cooldown and mana below.
	w.validator.CheckAbility(caster.ID, caster.Snapshot(), use)

	meta, ok := w.catalog.Lookup(use.AbilityKey)
	if !ok {
		return
	}
	if !caster.Cast(use.AbilityKey, meta, w.matchTime) {
		return
	}

	if meta.Damage > 0 {
		w.resolveDamageLocked(caster, meta, use)
	} else if use.AbilityKey == "mend" {
		caster.Heal(EntityMaxHP / 4)
	}
}

// resolveDamageLocked applies an offensive cast to its target
func (w *World) resolveDamageLocked(caster *Entity, meta AbilityMeta, use AbilityUseMsg) {
	target := w.entities[use.TargetID]
	if target == nil || target.Team == caster.Team {
		return
	}
	if !target.Alive {
		// Dead entities never receive damage; log and move on
		w.log.Warn("damage on dead entity dropped",
			zap.String("match", w.match.ID),
			zap.String("source", caster.ID),
			zap.String("target", target.ID))
		return
	}
	if Distance(caster.X, caster.Y, target.X, target.Y) > meta.Range {
		return
	}

	killed := target.TakeDamage(meta.Damage)
	caster.DamageDealt += meta.Damage

	w.broadcastJSONLocked(NewEnvelope(0, MsgDamageEvent, DamageEventMsg{
		SourceID:  caster.ID,
		TargetID:  target.ID,
		Amount:    meta.Damage,
		IsKill:    killed,
		MatchTime: w.matchTime,
	}))
	if killed {
		caster.Kills++
		w.scores[caster.Team]++
		w.broadcastJSONLocked(NewEnvelope(0, MsgKillEvent, KillEventMsg{
			KillerID: caster.ID,
			VictimID: target.ID,
		}))
	}
}

// checkEndLocked returns the winning side once a limit is hit
func (w *World) checkEndLocked() (int, bool) {
	if w.cfg.KillLimit > 0 {
		for side, score := range w.scores {
			if score >= w.cfg.KillLimit {
				return side, true
			}
		}
	}
	if w.cfg.TimeLimit > 0 && w.matchTime >= w.cfg.TimeLimit {
		switch {
		case w.scores[SideA] > w.scores[SideB]:
			return SideA, true
		case w.scores[SideB] > w.scores[SideA]:
			return SideB, true
		default:
			return SideNone, true // draw
		}
	}
	return SideNone, false
}

// encodeStateLocked builds the msgpack snapshot frame
func (w *World) encodeStateLocked() []byte {
	w.seq++
	update := GameStateUpdate{
		MatchID:   w.match.ID,
		Seq:       w.seq,
		MatchTime: w.matchTime,
		Entities:  make([]EntitySnapshot, 0, len(w.entities)),
		Scores:    map[int]int{SideA: w.scores[SideA], SideB: w.scores[SideB]},
	}
	for _, e := range w.entities {
		update.Entities = append(update.Entities, e.Snapshot())
	}
	data, err := msgpack.Marshal(update)
	if err != nil {
		w.log.Error("snapshot encode failed", zap.Error(err))
		return nil
	}
	return data
}

func (w *World) broadcastBinary(frame []byte) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.clients {
		c.SendBinary(frame)
	}
}

func (w *World) broadcastJSONLocked(env Envelope) {
	for _, c := range w.clients {
		c.SendJSON(env)
	}
}

// BroadcastJSON sends an envelope to every connected participant
func (w *World) BroadcastJSON(env Envelope) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	w.broadcastJSONLocked(env)
}

// Stats collects per-participant results for settlement
func (w *World) Stats() []MatchEndStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	stats := make([]MatchEndStats, 0, len(w.entities))
	for _, e := range w.entities {
		stats = append(stats, MatchEndStats{
			ParticipantID: e.ID,
			Kills:         e.Kills,
			Deaths:        e.Deaths,
			DamageDealt:   e.DamageDealt,
		})
	}
	return stats
}

// MatchTime returns the elapsed simulated time
func (w *World) MatchTime() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.matchTime
}
