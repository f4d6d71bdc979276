package main

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Violation reasons recorded on suspicion flags
const (
	ReasonSpeed          = "speed_exceeded"
	ReasonTeleport       = "teleport"
	ReasonCooldown       = "cooldown_violation"
	ReasonMana           = "insufficient_mana"
	ReasonAbilityRange   = "ability_out_of_range"
	ReasonDamageAmount   = "implausible_damage"
	ReasonDeadAttacker   = "dead_attacker"
	ReasonDeadTarget     = "dead_target"
	ReasonEngageDistance = "engagement_distance"
	ReasonUnknownAbility = "unknown_ability"
)

// ValidationResult is the outcome of one rule check
type ValidationResult struct {
	Valid  bool
	Issues []string
}

// SuspicionFlag is one recorded violation
type SuspicionFlag struct {
	Reason string
	Points int
	At     time.Time
}

// SuspicionRecord accumulates per-participant suspicion. Points only ever
// increase; crossing the threshold emits exactly one report per cycle.
type SuspicionRecord struct {
	ParticipantID string
	Points        int
	Flags         []SuspicionFlag
	Reported      bool
}

// SuspicionTracker is the shared accumulator the validators feed into
type SuspicionTracker struct {
	mu        sync.Mutex
	records   map[string]*SuspicionRecord
	threshold int
	clock     func() time.Time
	onReport  func(CheatReportMsg)
	log       *zap.Logger
}

// NewSuspicionTracker creates a tracker. onReport fires once per
// accumulation cycle when a participant crosses threshold; it may be nil.
func NewSuspicionTracker(threshold int, onReport func(CheatReportMsg), log *zap.Logger) *SuspicionTracker {
	return &SuspicionTracker{
		records:   make(map[string]*SuspicionRecord),
		threshold: threshold,
		clock:     time.Now,
		onReport:  onReport,
		log:       log,
	}
}

// Add records a violation for participantID
func (t *SuspicionTracker) Add(participantID, reason string, points int) {
	t.mu.Lock()
	rec, ok := t.records[participantID]
	if !ok {
		rec = &SuspicionRecord{ParticipantID: participantID}
		t.records[participantID] = rec
	}
	rec.Points += points
	rec.Flags = append(rec.Flags, SuspicionFlag{Reason: reason, Points: points, At: t.clock()})

	var report *CheatReportMsg
	if rec.Points >= t.threshold && !rec.Reported {
		rec.Reported = true
		flags := make([]string, len(rec.Flags))
		for i, f := range rec.Flags {
			flags[i] = f.Reason
		}
		report = &CheatReportMsg{
			ParticipantID: participantID,
			Points:        rec.Points,
			Flags:         flags,
			Severity:      t.severity(rec.Points),
		}
	}
	t.mu.Unlock()

	t.log.Warn("suspicion flagged",
		zap.String("participant", participantID),
		zap.String("reason", reason),
		zap.Int("points", points))

	if report != nil && t.onReport != nil {
		t.onReport(*report)
	}
}

// severity maps cumulative points to a report severity
func (t *SuspicionTracker) severity(points int) string {
	switch {
	case points >= 3*t.threshold:
		return "critical"
	case points >= 2*t.threshold:
		return "high"
	default:
		return "medium"
	}
}

// Record returns a copy of the participant's record, or nil if clean
func (t *SuspicionTracker) Record(participantID string) *SuspicionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[participantID]
	if !ok {
		return nil
	}
	cp := *rec
	cp.Flags = append([]SuspicionFlag(nil), rec.Flags...)
	return &cp
}

// ClearReport resets the report latch after an out-of-band moderation
// decision. Points and flags are kept.
func (t *SuspicionTracker) ClearReport(participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[participantID]; ok {
		rec.Reported = false
	}
}

// Remove drops a participant's record entirely (disconnect cleanup)
func (t *SuspicionTracker) Remove(participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, participantID)
}

// Validator runs stateless plausibility checks over reported actions and
// feeds violations into the shared suspicion tracker. Checks never reject
// the action itself; scoring is advisory and moderation happens out of band.
type Validator struct {
	cfg       AntiCheatConfig
	abilities AbilityCatalog
	suspicion *SuspicionTracker
}

// NewValidator wires a validator to its metadata source and tracker
func NewValidator(cfg AntiCheatConfig, abilities AbilityCatalog, suspicion *SuspicionTracker) *Validator {
	return &Validator{cfg: cfg, abilities: abilities, suspicion: suspicion}
}

// Suspicion exposes the shared tracker
func (v *Validator) Suspicion() *SuspicionTracker { return v.suspicion }

// CheckMovement validates a reported position delta over elapsed seconds.
// A teleport-sized jump is flagged at higher severity regardless of elapsed
// time; otherwise the implied velocity is compared to the speed cap.
func (v *Validator) CheckMovement(participantID string, fromX, fromY, toX, toY, elapsed float64) ValidationResult {
	res := ValidationResult{Valid: true}
	dist := Distance(fromX, fromY, toX, toY)

	if dist > v.cfg.TeleportThreshold {
		res.Valid = false
		res.Issues = append(res.Issues, fmt.Sprintf("teleport: moved %.0fpx (threshold %.0fpx)", dist, v.cfg.TeleportThreshold))
		v.suspicion.Add(participantID, ReasonTeleport, v.cfg.TeleportPoints)
		return res
	}

	if elapsed > 0 {
		speed := dist / elapsed
		if speed > v.cfg.MaxSpeed {
			res.Valid = false
			res.Issues = append(res.Issues, fmt.Sprintf("speed: %.0fpx/s exceeds max %.0fpx/s", speed, v.cfg.MaxSpeed))
			v.suspicion.Add(participantID, ReasonSpeed, v.cfg.SpeedPoints)
		}
	}
	return res
}

// CheckAbility validates an ability use against the caster's authoritative
// snapshot and the content collaborator's metadata. All three rules run even
// after a failure so one action can accrue multiple flags.
func (v *Validator) CheckAbility(participantID string, caster EntitySnapshot, use AbilityUseMsg) ValidationResult {
	res := ValidationResult{Valid: true}

	meta, ok := v.abilities.Lookup(use.AbilityKey)
	if !ok {
		res.Valid = false
		res.Issues = append(res.Issues, fmt.Sprintf("unknown ability %q", use.AbilityKey))
		v.suspicion.Add(participantID, ReasonUnknownAbility, v.cfg.AbilityPoints)
		return res
	}

	for _, st := range caster.Abilities {
		if st.Key == use.AbilityKey && st.Cooldown > 0 {
			res.Valid = false
			res.Issues = append(res.Issues, fmt.Sprintf("%s on cooldown: %.1fs remaining", use.AbilityKey, st.Cooldown))
			v.suspicion.Add(participantID, ReasonCooldown, v.cfg.AbilityPoints)
			break
		}
	}

	if caster.Mana < meta.ManaCost {
		res.Valid = false
		res.Issues = append(res.Issues, fmt.Sprintf("mana %d below cost %d", caster.Mana, meta.ManaCost))
		v.suspicion.Add(participantID, ReasonMana, v.cfg.AbilityPoints)
	}

	if meta.Range > 0 {
		dist := Distance(caster.X, caster.Y, use.TX, use.TY)
		if dist > meta.Range {
			res.Valid = false
			res.Issues = append(res.Issues, fmt.Sprintf("target %.0fpx away, range %.0fpx", dist, meta.Range))
			v.suspicion.Add(participantID, ReasonAbilityRange, v.cfg.AbilityPoints)
		}
	}
	return res
}

// CheckDamage validates a reported damage event between two authoritative
// snapshots. Attacker identity is the participant scored on violation.
func (v *Validator) CheckDamage(participantID string, attacker, target EntitySnapshot, amount int) ValidationResult {
	res := ValidationResult{Valid: true}

	if amount > v.cfg.MaxDamage {
		res.Valid = false
		res.Issues = append(res.Issues, fmt.Sprintf("damage %d exceeds plausible max %d", amount, v.cfg.MaxDamage))
		v.suspicion.Add(participantID, ReasonDamageAmount, v.cfg.DamagePoints)
	}
	if !attacker.Alive {
		res.Valid = false
		res.Issues = append(res.Issues, "attacker is dead")
		v.suspicion.Add(participantID, ReasonDeadAttacker, v.cfg.DamagePoints)
	}
	if !target.Alive {
		res.Valid = false
		res.Issues = append(res.Issues, "target was already dead")
		v.suspicion.Add(participantID, ReasonDeadTarget, v.cfg.DamagePoints)
	}
	if dist := Distance(attacker.X, attacker.Y, target.X, target.Y); dist > v.cfg.MaxEngageRange {
		res.Valid = false
		res.Issues = append(res.Issues, fmt.Sprintf("attacker %.0fpx from target, max engagement %.0fpx", dist, v.cfg.MaxEngageRange))
		v.suspicion.Add(participantID, ReasonEngageDistance, v.cfg.DamagePoints)
	}
	return res
}
