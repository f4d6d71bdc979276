package main

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrAlreadyQueued = errors.New("participant already queued")
	ErrNotQueued     = errors.New("participant not queued")
)

// poolKey identifies one matchmaking pool
type poolKey struct {
	Mode      string
	GroupSize int
}

// QueueEntry is one queued participant or premade group. SearchRange only
// ever widens while queued, bounded by the configured maximum.
type QueueEntry struct {
	ParticipantID string // leader id; also the notification target
	Members       []RatedParticipant
	Rating        int // group average
	Mode          string
	GroupSize     int
	PreferredHero string
	EnqueuedAt    time.Time
	SearchRange   int
	LastExpansion time.Time

	expandTimer  *time.Timer
	timeoutTimer *time.Timer
}

// pool holds the entries for one (mode, groupSize) bucket in enqueue order
type pool struct {
	key     poolKey
	entries map[string]*QueueEntry
	order   []string
}

func (p *pool) remove(pid string) *QueueEntry {
	e, ok := p.entries[pid]
	if !ok {
		return nil
	}
	delete(p.entries, pid)
	for i, id := range p.order {
		if id == pid {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	if e.expandTimer != nil {
		e.expandTimer.Stop()
	}
	if e.timeoutTimer != nil {
		e.timeoutTimer.Stop()
	}
	return e
}

// Matchmaker owns all pools. The single mutex serializes formation, so no
// entry can ever be placed into two matches.
type Matchmaker struct {
	cfg QueueConfig

	mu     sync.Mutex
	pools  map[poolKey]*pool
	recent map[string]map[string]time.Time // participant -> opponent -> last met
	closed bool

	clock   func() time.Time
	log     *zap.Logger
	events  *Events
	onMatch func(*Match)
	notify  func(participantID string, env Envelope)
}

// NewMatchmaker creates a matchmaker. onMatch receives every formed match;
// notify delivers queue updates and failures to a participant. events may
// be nil.
func NewMatchmaker(cfg QueueConfig, events *Events, log *zap.Logger, onMatch func(*Match), notify func(string, Envelope)) *Matchmaker {
	return &Matchmaker{
		cfg:     cfg,
		pools:   make(map[poolKey]*pool),
		recent:  make(map[string]map[string]time.Time),
		clock:   time.Now,
		log:     log,
		events:  events,
		onMatch: onMatch,
		notify:  notify,
	}
}

// Join enqueues a participant (or premade group). The entry starts at the
// initial search range and widens on a per-entry timer until capped.
func (m *Matchmaker) Join(participantID, mode string, members []RatedParticipant, preferredHero string) (*QueueEntry, error) {
	if len(members) == 0 {
		return nil, errors.New("empty roster")
	}
	key := poolKey{Mode: mode, GroupSize: len(members)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrNotQueued
	}

	p, ok := m.pools[key]
	if !ok {
		p = &pool{key: key, entries: make(map[string]*QueueEntry)}
		m.pools[key] = p
	}
	if _, dup := p.entries[participantID]; dup {
		return nil, ErrAlreadyQueued
	}

	now := m.clock()
	e := &QueueEntry{
		ParticipantID: participantID,
		Members:       append([]RatedParticipant(nil), members...),
		Rating:        avgRating(members),
		Mode:          mode,
		GroupSize:     len(members),
		PreferredHero: preferredHero,
		EnqueuedAt:    now,
		SearchRange:   m.cfg.InitialRange,
		LastExpansion: now,
	}
	p.entries[participantID] = e
	p.order = append(p.order, participantID)

	// One cancelable timer pair per entry, stopped deterministically on
	// removal so nothing fires against a departed participant.
	e.expandTimer = time.AfterFunc(m.cfg.ExpandEvery, func() { m.expand(key, participantID) })
	e.timeoutTimer = time.AfterFunc(m.cfg.MaxWait, func() { m.expire(key, participantID) })

	m.events.Track(EvtQueueJoin, participantID, "", mode)
	m.log.Info("queue join",
		zap.String("participant", participantID),
		zap.String("mode", mode),
		zap.Int("group_size", e.GroupSize),
		zap.Int("rating", e.Rating))

	m.formLocked(p)
	m.pushUpdatesLocked(p)
	return e, nil
}

// Leave removes a participant from its pool. Idempotent.
func (m *Matchmaker) Leave(participantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pools {
		if e := p.remove(participantID); e != nil {
			m.events.Track(EvtQueueLeave, participantID, "", e.Mode)
			m.pushUpdatesLocked(p)
			return true
		}
	}
	return false
}

// QueuedCount returns the number of entries across all pools
func (m *Matchmaker) QueuedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.pools {
		n += len(p.entries)
	}
	return n
}

// Entry returns a copy of a queued entry, or nil
func (m *Matchmaker) Entry(participantID string) *QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pools {
		if e, ok := p.entries[participantID]; ok {
			cp := *e
			cp.expandTimer = nil
			cp.timeoutTimer = nil
			return &cp
		}
	}
	return nil
}

// Stop cancels every entry's timers and empties the pools
func (m *Matchmaker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, p := range m.pools {
		for pid := range p.entries {
			p.remove(pid)
		}
	}
}

// expand widens one entry's search range and retries formation
func (m *Matchmaker) expand(key poolKey, participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[key]
	if !ok {
		return
	}
	e, ok := p.entries[participantID]
	if !ok {
		return // removed between fire and lock
	}

	if e.SearchRange < m.cfg.MaxRange {
		e.SearchRange += m.cfg.RangeStep
		if e.SearchRange > m.cfg.MaxRange {
			e.SearchRange = m.cfg.MaxRange
		}
		e.LastExpansion = m.clock()
	}
	e.expandTimer = time.AfterFunc(m.cfg.ExpandEvery, func() { m.expand(key, participantID) })

	m.formLocked(p)
	if _, still := p.entries[participantID]; still {
		m.notify(participantID, NewEnvelope(0, MsgQueueUpdated, m.updateForLocked(p, participantID)))
	}
}

// expire force-removes an entry that hit the absolute wait cap. The
// participant gets an explicit failure, never a silent drop.
func (m *Matchmaker) expire(key poolKey, participantID string) {
	m.mu.Lock()
	p, ok := m.pools[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	e := p.remove(participantID)
	if e != nil {
		m.pushUpdatesLocked(p)
	}
	m.mu.Unlock()
	if e == nil {
		return
	}

	m.events.Track(EvtQueueTimeout, participantID, "", e.Mode)
	m.log.Info("queue timeout", zap.String("participant", participantID), zap.String("mode", e.Mode))
	m.notify(participantID, NewEnvelope(0, MsgError, ErrorMsg{
		Code:    ErrCodeQueueTimeout,
		Message: "no compatible match found before the wait limit",
	}))
}

// formLocked pairs compatible entries until no pair qualifies. Caller holds
// the matchmaker mutex; removal and match creation happen in one step.
func (m *Matchmaker) formLocked(p *pool) {
	for {
		a, b, quality := m.bestPairLocked(p)
		if a == nil {
			return
		}
		p.remove(a.ParticipantID)
		p.remove(b.ParticipantID)
		m.recordMeetingLocked(a, b)

		match := NewMatch(a, b, quality)
		m.events.Track(EvtMatchFormed, a.ParticipantID, match.ID, match.Mode)
		m.log.Info("match formed",
			zap.String("match", match.ID),
			zap.String("mode", match.Mode),
			zap.Float64("quality", quality),
			zap.Duration("wait_a", m.clock().Sub(a.EnqueuedAt)),
			zap.Duration("wait_b", m.clock().Sub(b.EnqueuedAt)))
		if m.onMatch != nil {
			m.onMatch(match)
		}
	}
}

// bestPairLocked scans every pair and returns the highest-quality one that
// qualifies: quality at or above the floor, or either side past the
// force-match deadline.
func (m *Matchmaker) bestPairLocked(p *pool) (*QueueEntry, *QueueEntry, float64) {
	now := m.clock()
	var bestA, bestB *QueueEntry
	bestQ := -1.0

	for i := 0; i < len(p.order); i++ {
		a, ok := p.entries[p.order[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(p.order); j++ {
			b, ok := p.entries[p.order[j]]
			if !ok {
				continue
			}
			forced := now.Sub(a.EnqueuedAt) >= m.cfg.ForceMatchAfter ||
				now.Sub(b.EnqueuedAt) >= m.cfg.ForceMatchAfter
			if !m.compatible(a, b) && !forced {
				continue
			}
			q := m.qualityScore(a, b, now)
			if q < m.cfg.QualityFloor && !forced {
				continue
			}
			if q > bestQ {
				bestA, bestB, bestQ = a, b, q
			}
		}
	}
	return bestA, bestB, bestQ
}

// compatible requires the rating gap to fit inside both search ranges
func (m *Matchmaker) compatible(a, b *QueueEntry) bool {
	gap := a.Rating - b.Rating
	if gap < 0 {
		gap = -gap
	}
	limit := a.SearchRange
	if b.SearchRange < limit {
		limit = b.SearchRange
	}
	return gap <= limit
}

// qualityScore is the weighted 0-100 pairing score: skill balance plus
// wait-time balance, minus penalties for hero overlap and recent rematches.
func (m *Matchmaker) qualityScore(a, b *QueueEntry, now time.Time) float64 {
	gap := float64(a.Rating - b.Rating)
	if gap < 0 {
		gap = -gap
	}
	skill := 100 - gap/float64(m.cfg.MaxRange)*100

	waitGap := now.Sub(a.EnqueuedAt) - now.Sub(b.EnqueuedAt)
	if waitGap < 0 {
		waitGap = -waitGap
	}
	waitBalance := 100 - Clamp(waitGap.Seconds()/m.cfg.ForceMatchAfter.Seconds()*100, 0, 100)

	q := m.cfg.SkillWeight*skill + m.cfg.WaitWeight*waitBalance
	if a.PreferredHero != "" && a.PreferredHero == b.PreferredHero {
		q -= m.cfg.OverlapPenalty
	}
	if m.metRecentlyLocked(a.ParticipantID, b.ParticipantID, now) {
		q -= m.cfg.RematchPenalty
	}
	return Clamp(q, 0, 100)
}

func (m *Matchmaker) metRecentlyLocked(a, b string, now time.Time) bool {
	if opp, ok := m.recent[a]; ok {
		if at, met := opp[b]; met && now.Sub(at) < m.cfg.RematchWindow {
			return true
		}
	}
	return false
}

func (m *Matchmaker) recordMeetingLocked(a, b *QueueEntry) {
	now := m.clock()
	for _, pair := range [][2]string{{a.ParticipantID, b.ParticipantID}, {b.ParticipantID, a.ParticipantID}} {
		opp, ok := m.recent[pair[0]]
		if !ok {
			opp = make(map[string]time.Time)
			m.recent[pair[0]] = opp
		}
		opp[pair[1]] = now
	}
}

// pushUpdatesLocked sends fresh position/wait estimates to a whole pool
func (m *Matchmaker) pushUpdatesLocked(p *pool) {
	if m.notify == nil {
		return
	}
	for _, pid := range p.order {
		m.notify(pid, NewEnvelope(0, MsgQueueUpdated, m.updateForLocked(p, pid)))
	}
}

func (m *Matchmaker) updateForLocked(p *pool, participantID string) QueueUpdatedMsg {
	pos := 0
	for i, id := range p.order {
		if id == participantID {
			pos = i
			break
		}
	}
	e := p.entries[participantID]
	rng := 0
	if e != nil {
		rng = e.SearchRange
	}
	return QueueUpdatedMsg{
		Position:      pos + 1,
		EstimatedWait: float64(pos+1) * m.cfg.ExpandEvery.Seconds(),
		SearchRange:   rng,
	}
}
