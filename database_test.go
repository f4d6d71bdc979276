package main

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreatePlayerSeedsRating(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreatePlayer("alice", "hash")
	require.NoError(t, err)
	require.NotZero(t, id)

	p, err := db.GetPlayerByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, id, p.ID)

	r, err := db.GetRating(id)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, DefaultRating, r.Rating)
	assert.Zero(t, r.GamesPlayed)
}

func TestUsernameLookups(t *testing.T) {
	db := openTestDB(t)
	db.CreatePlayer("bob", "hash")

	exists, err := db.UsernameExists("bob")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.UsernameExists("nobody")
	require.NoError(t, err)
	assert.False(t, exists)

	p, err := db.GetPlayerByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, p, "missing players return nil, not an error")
}

func TestSettleRatingTracksRecord(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreatePlayer("carol", "hash")

	require.NoError(t, db.SettleRating(id, 1040, ResultWin))
	require.NoError(t, db.SettleRating(id, 1028, ResultLoss))
	require.NoError(t, db.SettleRating(id, 1028, ResultDraw))

	r, err := db.GetRating(id)
	require.NoError(t, err)
	assert.Equal(t, 1028, r.Rating)
	assert.Equal(t, 3, r.GamesPlayed)
	assert.Equal(t, 1, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.Equal(t, 1, r.Draws)
}

func TestMatchPersistenceRoundTrip(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreatePlayer("dave", "hash")

	require.NoError(t, db.RecordMatch("m-1", "duel", 245.5, SideA, 93))
	require.NoError(t, db.RecordMatchPlayer(MatchPlayerRow{
		MatchID:      "m-1",
		PlayerID:     id,
		Side:         SideA,
		Kills:        7,
		Deaths:       2,
		DamageDealt:  1840,
		RatingBefore: 1000,
		RatingAfter:  1012,
	}))

	history, err := db.GetMatchHistory(id, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 7, history[0].Kills)
	assert.Equal(t, 1012, history[0].RatingAfter)
}

func TestLeaderboardOrdersByRating(t *testing.T) {
	db := openTestDB(t)
	a, _ := db.CreatePlayer("low", "hash")
	b, _ := db.CreatePlayer("high", "hash")
	db.SettleRating(a, 950, ResultLoss)
	db.SettleRating(b, 1200, ResultWin)

	entries, err := db.GetLeaderboard(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "high", entries[0].Username)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "low", entries[1].Username)
}

func TestCheatReportPersistence(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordCheatReport(CheatReportMsg{
		ParticipantID: "p-9",
		Points:        125,
		Flags:         []string{ReasonSpeed, ReasonTeleport},
		Severity:      "medium",
	}))

	reports, err := db.GetCheatReports("p-9", 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 125, reports[0].Points)
	assert.Equal(t, "speed_exceeded,teleport", reports[0].Flags)
}

func TestSettingsUpsert(t *testing.T) {
	db := openTestDB(t)

	assert.Empty(t, db.GetSetting("motd"))
	require.NoError(t, db.SetSetting("motd", "welcome"))
	assert.Equal(t, "welcome", db.GetSetting("motd"))
	require.NoError(t, db.SetSetting("motd", "updated"))
	assert.Equal(t, "updated", db.GetSetting("motd"))
}

func TestEventsWriterFlushes(t *testing.T) {
	db := openTestDB(t)
	events := NewEvents(db, zap.NewNop())

	events.Track(EvtConnect, "p-1", "", "")
	events.Track(EvtAuth, "p-1", "", "login")
	events.Track(EvtQueueJoin, "p-1", "", "duel")
	events.Track(EvtQueueJoin, "p-2", "", "duel")
	events.Stop() // drains the buffer

	counts, err := events.EventCounts(1)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[EvtConnect])
	assert.Equal(t, 1, counts[EvtAuth])
	assert.Equal(t, 2, counts[EvtQueueJoin])
}

func TestEventsTrackSafeDuringStop(t *testing.T) {
	db := openTestDB(t)
	events := NewEvents(db, zap.NewNop())

	// Hammer Track from other goroutines while Stop drains; a send on a
	// closed channel would panic here.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				events.Track(EvtConnect, "p", "", "")
			}
		}()
	}
	events.Stop()
	wg.Wait()

	// Post-stop tracking is a silent no-op once the buffer fills
	events.Track(EvtDisconnect, "p", "", "")
}

func TestAuthRegisterLoginToken(t *testing.T) {
	db := openTestDB(t)
	auth := NewAuth(db, zap.NewNop())

	id, token, err := auth.Register("erin", "hunter2")
	require.NoError(t, err)
	require.NotZero(t, id)
	require.NotEmpty(t, token)

	_, _, err = auth.Register("erin", "hunter2")
	assert.Error(t, err, "duplicate username must be rejected")

	loginID, _, err := auth.Login("erin", "hunter2", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, id, loginID)

	_, _, err = auth.Login("erin", "wrong", "127.0.0.1")
	assert.Error(t, err)

	tokID, username, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, tokID)
	assert.Equal(t, "erin", username)

	_, _, err = auth.ValidateToken("garbage")
	assert.Error(t, err)
}

func TestAuthSecretPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	db1, err := OpenDB(path)
	require.NoError(t, err)
	auth1 := NewAuth(db1, zap.NewNop())
	_, token, err := auth1.Register("frank", "hunter2")
	require.NoError(t, err)
	db1.Close()

	db2, err := OpenDB(path)
	require.NoError(t, err)
	defer db2.Close()
	auth2 := NewAuth(db2, zap.NewNop())

	id, username, err := auth2.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "frank", username)
	require.NotZero(t, id)
}

func TestLoginRateLimit(t *testing.T) {
	db := openTestDB(t)
	auth := NewAuth(db, zap.NewNop())
	auth.Register("grace", "hunter2")

	for i := 0; i < maxLoginAttempts; i++ {
		auth.Login("grace", "wrong", "10.0.0.1")
	}
	_, _, err := auth.Login("grace", "hunter2", "10.0.0.1")
	assert.Error(t, err, "rate limit should trip even on the right password")

	// A different source address is unaffected
	_, _, err = auth.Login("grace", "hunter2", "10.0.0.2")
	assert.NoError(t, err)
}
