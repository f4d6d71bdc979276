package main

import (
	"testing"

	"go.uber.org/zap"
)

func testValidator(onReport func(CheatReportMsg)) *Validator {
	cfg := DefaultConfig().AntiCheat
	tracker := NewSuspicionTracker(cfg.ReportThreshold, onReport, zap.NewNop())
	return NewValidator(cfg, DefaultAbilities, tracker)
}

func TestCheckMovementWithinBounds(t *testing.T) {
	v := testValidator(nil)
	res := v.CheckMovement("p1", 0, 0, 300, 0, 1.0)
	if !res.Valid {
		t.Errorf("300px/s is under the cap, got issues %v", res.Issues)
	}
	if v.Suspicion().Record("p1") != nil {
		t.Error("clean movement should not accrue suspicion")
	}
}

func TestCheckMovementSpeedExceeded(t *testing.T) {
	v := testValidator(nil)
	res := v.CheckMovement("p1", 0, 0, 500, 0, 1.0)
	if res.Valid {
		t.Fatal("500px/s should exceed the 400px/s cap")
	}
	rec := v.Suspicion().Record("p1")
	if rec == nil || rec.Points != DefaultConfig().AntiCheat.SpeedPoints {
		t.Errorf("expected %d speed points, got %+v", DefaultConfig().AntiCheat.SpeedPoints, rec)
	}
}

func TestCheckMovementTeleport(t *testing.T) {
	v := testValidator(nil)
	// A huge jump is a teleport even when the elapsed time would make the
	// implied speed legal.
	res := v.CheckMovement("p1", 0, 0, 1000, 0, 10.0)
	if res.Valid {
		t.Fatal("1000px jump should flag as teleport")
	}
	rec := v.Suspicion().Record("p1")
	if rec == nil || len(rec.Flags) != 1 || rec.Flags[0].Reason != ReasonTeleport {
		t.Errorf("expected a single teleport flag, got %+v", rec)
	}
}

func TestCheckAbilityCooldownManaRange(t *testing.T) {
	v := testValidator(nil)
	caster := EntitySnapshot{
		ID: "p1", X: 0, Y: 0, Mana: 5, Alive: true,
		Abilities: []AbilityStatus{{Key: "bolt", Cooldown: 2.0}},
	}
	// bolt: on cooldown, costs 35 mana, range 700; target at 800px
	res := v.CheckAbility("p1", caster, AbilityUseMsg{AbilityKey: "bolt", TX: 800, TY: 0})
	if res.Valid {
		t.Fatal("cast should fail all three checks")
	}
	if len(res.Issues) != 3 {
		t.Errorf("all rules should run even after a failure, got %v", res.Issues)
	}
}

func TestCheckAbilityUnknownKey(t *testing.T) {
	v := testValidator(nil)
	res := v.CheckAbility("p1", EntitySnapshot{Alive: true}, AbilityUseMsg{AbilityKey: "nonsense"})
	if res.Valid {
		t.Fatal("unknown ability should flag")
	}
	if len(res.Issues) != 1 {
		t.Errorf("unknown ability short-circuits, got %v", res.Issues)
	}
}

func TestCheckDamageRules(t *testing.T) {
	v := testValidator(nil)
	attacker := EntitySnapshot{ID: "a", X: 0, Y: 0, Alive: true}
	target := EntitySnapshot{ID: "b", X: 100, Y: 0, Alive: true}

	if res := v.CheckDamage("a", attacker, target, 90); !res.Valid {
		t.Errorf("plausible damage flagged: %v", res.Issues)
	}
	if res := v.CheckDamage("a", attacker, target, 600); res.Valid {
		t.Error("600 damage should exceed the plausible max")
	}

	dead := target
	dead.Alive = false
	if res := v.CheckDamage("a", attacker, dead, 90); res.Valid {
		t.Error("damage to a dead target should flag")
	}

	far := target
	far.X = 1200
	if res := v.CheckDamage("a", attacker, far, 90); res.Valid {
		t.Error("damage outside engagement range should flag")
	}
}

func TestSuspicionReportFiresOnceAtThreshold(t *testing.T) {
	var reports []CheatReportMsg
	v := testValidator(func(r CheatReportMsg) { reports = append(reports, r) })

	// 25 + 25 + 25 = 75, then teleport +50 crosses 100
	for i := 0; i < 3; i++ {
		v.CheckMovement("p1", 0, 0, 500, 0, 1.0)
	}
	if len(reports) != 0 {
		t.Fatalf("report before threshold: %+v", reports)
	}
	v.CheckMovement("p1", 0, 0, 1000, 0, 1.0)
	if len(reports) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(reports))
	}
	if reports[0].Points != 125 || reports[0].Severity != "medium" {
		t.Errorf("report %+v, want 125 points at medium severity", reports[0])
	}

	// Further violations in the same cycle stay latched
	v.CheckMovement("p1", 0, 0, 1000, 0, 1.0)
	if len(reports) != 1 {
		t.Errorf("latch broken: %d reports", len(reports))
	}

	// Clearing the latch re-arms reporting
	v.Suspicion().ClearReport("p1")
	v.CheckMovement("p1", 0, 0, 1000, 0, 1.0)
	if len(reports) != 2 {
		t.Errorf("expected a second report after clearing, got %d", len(reports))
	}
}

func TestSuspicionSeverityTiers(t *testing.T) {
	tracker := NewSuspicionTracker(100, nil, zap.NewNop())
	if s := tracker.severity(120); s != "medium" {
		t.Errorf("120 points -> %s, want medium", s)
	}
	if s := tracker.severity(210); s != "high" {
		t.Errorf("210 points -> %s, want high", s)
	}
	if s := tracker.severity(330); s != "critical" {
		t.Errorf("330 points -> %s, want critical", s)
	}
}

func TestSuspicionRemoveClearsRecord(t *testing.T) {
	v := testValidator(nil)
	v.CheckMovement("p1", 0, 0, 1000, 0, 1.0)
	v.Suspicion().Remove("p1")
	if v.Suspicion().Record("p1") != nil {
		t.Error("record should be gone after Remove")
	}
}
