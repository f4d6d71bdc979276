package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSync() *Synchronizer {
	return NewSynchronizer(DefaultConfig().Sync)
}

func aliveSnap(id string, x, y float64) EntitySnapshot {
	return EntitySnapshot{ID: id, X: x, Y: y, HP: EntityMaxHP, MaxHP: EntityMaxHP, Alive: true}
}

func TestSyncPredictionAdvancesControlledEntity(t *testing.T) {
	s := testSync()
	s.Track("me", true)
	s.Buffer(GameStateUpdate{Seq: 1, Entities: []EntitySnapshot{aliveSnap("me", 0, 0)}})
	s.Tick(1.0 / 60.0)

	s.SetInput("me", 1, 0)
	s.Tick(1.0 / 60.0)

	e := s.Entity("me")
	require.NotNil(t, e)
	assert.InDelta(t, 300.0/60.0, e.EffectiveX(), 1e-9, "one tick at full speed")
	assert.Equal(t, 0.0, e.EffectiveY())
}

func TestSyncUncontrolledFollowsAuthoritative(t *testing.T) {
	s := testSync()
	s.Track("other", false)
	s.SetInput("other", 1, 0) // ignored for uncontrolled entities
	s.Buffer(GameStateUpdate{Seq: 1, Entities: []EntitySnapshot{aliveSnap("other", 42, 17)}})
	s.Tick(1.0 / 60.0)

	e := s.Entity("other")
	require.NotNil(t, e)
	assert.Equal(t, 42.0, e.EffectiveX())
	assert.Equal(t, 17.0, e.EffectiveY())
}

func TestSyncSmallDivergenceNotCorrected(t *testing.T) {
	s := testSync()
	s.Track("me", true)
	s.Buffer(GameStateUpdate{Seq: 1, Entities: []EntitySnapshot{aliveSnap("me", 0, 0)}})
	s.Tick(1.0 / 60.0)

	// Predicted position drifts 49px, just under the 50px threshold
	s.SetInput("me", 1, 0)
	s.Tick(49.0 / 300.0) // one tick covering 49px
	s.Buffer(GameStateUpdate{Seq: 2, Entities: []EntitySnapshot{aliveSnap("me", 0, 0)}})
	s.SetInput("me", 0, 0)
	s.Tick(1.0 / 60.0)

	e := s.Entity("me")
	require.NotNil(t, e)
	assert.False(t, e.Correcting(), "divergence under threshold must not snap or interpolate")
	assert.InDelta(t, 49.0, e.EffectiveX(), 1e-9, "prediction stands")
}

func TestSyncLargeDivergenceCorrectedOverTicks(t *testing.T) {
	s := testSync()
	cfg := DefaultConfig().Sync
	s.Track("me", true)
	s.Buffer(GameStateUpdate{Seq: 1, Entities: []EntitySnapshot{aliveSnap("me", 0, 0)}})
	s.Tick(1.0 / 60.0)

	// Drift 120px past the server position, then get corrected back
	s.SetInput("me", 1, 0)
	s.Tick(120.0 / 300.0)
	s.SetInput("me", 0, 0)
	s.Buffer(GameStateUpdate{Seq: 2, Entities: []EntitySnapshot{aliveSnap("me", 0, 0)}})

	for i := 0; i < cfg.CorrectionTicks; i++ {
		s.Tick(1.0 / 60.0)
		e := s.Entity("me")
		if i < cfg.CorrectionTicks-1 {
			assert.True(t, e.Correcting(), "correction should span the configured ticks")
		}
	}

	e := s.Entity("me")
	require.NotNil(t, e)
	assert.False(t, e.Correcting())
	assert.Equal(t, 0.0, e.EffectiveX(), "final correction step lands exactly on the authoritative point")
}

func TestSyncStaleUpdateDiscarded(t *testing.T) {
	s := testSync()
	s.Track("other", false)
	s.Buffer(GameStateUpdate{Seq: 5, Entities: []EntitySnapshot{aliveSnap("other", 100, 0)}})
	s.Tick(1.0 / 60.0)

	// An older snapshot arriving late must not roll state back
	s.Buffer(GameStateUpdate{Seq: 3, Entities: []EntitySnapshot{aliveSnap("other", 50, 0)}})
	s.Tick(1.0 / 60.0)

	assert.Equal(t, 100.0, s.Entity("other").EffectiveX())
}

func TestSyncNonPositionalAlwaysOverwritten(t *testing.T) {
	s := testSync()
	s.Track("me", true)
	first := aliveSnap("me", 0, 0)
	s.Buffer(GameStateUpdate{Seq: 1, Entities: []EntitySnapshot{first}})
	s.Tick(1.0 / 60.0)

	hurt := first
	hurt.HP = 200
	hurt.Mana = 50
	s.Buffer(GameStateUpdate{Seq: 2, Entities: []EntitySnapshot{hurt}})
	s.Tick(1.0 / 60.0)

	e := s.Entity("me")
	assert.Equal(t, 200, e.Auth.HP, "health is never predicted")
	assert.Equal(t, 50, e.Auth.Mana, "resources are never predicted")

	ch := s.Changes("me")
	assert.True(t, ch.Health)
	assert.True(t, ch.Resource)
}

func TestSyncIdenticalSnapshotsLeaveAbilitiesUnchanged(t *testing.T) {
	s := testSync()
	s.Track("me", false)
	ent := NewEntity("me", SideA, 100, 100, DefaultAbilities)

	// Snapshot order must be stable across calls or the diff flaps.
	// Re-snapshot several times since map iteration order varies.
	s.Buffer(GameStateUpdate{Seq: 1, Entities: []EntitySnapshot{ent.Snapshot()}})
	s.Tick(1.0 / 60.0)
	for seq := uint64(2); seq < 10; seq++ {
		s.ClearFrame()
		s.Buffer(GameStateUpdate{Seq: seq, Entities: []EntitySnapshot{ent.Snapshot()}})
		s.Tick(1.0 / 60.0)
		assert.False(t, s.Changes("me").Abilities, "untouched abilities flagged as changed")
	}

	s.ClearFrame()
	snap := ent.Snapshot()
	snap.Abilities[0].Cooldown = 3.5
	s.Buffer(GameStateUpdate{Seq: 10, Entities: []EntitySnapshot{snap}})
	s.Tick(1.0 / 60.0)
	assert.True(t, s.Changes("me").Abilities, "real cooldown change must be flagged")
}

func TestSyncDeathCancelsPrediction(t *testing.T) {
	s := testSync()
	s.Track("me", true)
	s.Buffer(GameStateUpdate{Seq: 1, Entities: []EntitySnapshot{aliveSnap("me", 0, 0)}})
	s.Tick(1.0 / 60.0)
	s.SetInput("me", 1, 0)
	s.Tick(1.0)

	dead := EntitySnapshot{ID: "me", X: 10, Y: 10, Alive: false}
	s.Buffer(GameStateUpdate{Seq: 2, Entities: []EntitySnapshot{dead}})
	s.Tick(1.0 / 60.0)

	e := s.Entity("me")
	assert.False(t, e.Correcting())
	assert.Equal(t, 10.0, e.EffectiveX())
	assert.Equal(t, 10.0, e.EffectiveY())
}

func TestSyncFrameEventsAndClear(t *testing.T) {
	s := testSync()
	s.Track("me", true)
	s.AddEvent(FrameEvent{Type: EventDamage, Data: "a"})
	s.AddEvent(FrameEvent{Type: EventKill, Data: "b"})

	events := s.FrameEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventDamage, events[0].Type, "event log preserves order")

	s.ClearFrame()
	assert.Empty(t, s.FrameEvents())
	assert.False(t, s.Changes("me").Any())
}

func TestSyncScoreChangePropagates(t *testing.T) {
	s := testSync()
	s.Track("me", true)
	s.Buffer(GameStateUpdate{Seq: 1, Scores: map[int]int{SideA: 3, SideB: 1}})
	s.Tick(1.0 / 60.0)

	assert.Equal(t, 3, s.Scores()[SideA])
	assert.True(t, s.Changes("me").Score)
}

func TestBandwidthEstimate(t *testing.T) {
	s := testSync()
	// (28 + 74*10) * 30 updates/sec
	assert.Equal(t, float64((28+74*10)*30), s.BandwidthEstimate(10, 30))
}
