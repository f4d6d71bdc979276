package main

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// PlayerRow represents a player account
type PlayerRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// RatingRow represents a player's competitive record
type RatingRow struct {
	PlayerID    int64
	Rating      int
	GamesPlayed int
	Wins        int
	Losses      int
	Draws       int
}

// MatchRow represents a completed match
type MatchRow struct {
	ID         string
	Mode       string
	Duration   float64
	WinnerSide int
	Quality    float64
	CreatedAt  time.Time
}

// MatchPlayerRow represents a player's line in a completed match
type MatchPlayerRow struct {
	MatchID      string
	PlayerID     int64
	Side         int
	Kills        int
	Deaths       int
	DamageDealt  int
	RatingBefore int
	RatingAfter  int
}

// CheatReportRow represents a persisted suspicion report
type CheatReportRow struct {
	ID            int64
	ParticipantID string
	Points        int
	Severity      string
	Flags         string // comma-joined reasons
	CreatedAt     time.Time
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL for concurrent readers alongside the writer goroutines
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		is_guest INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ratings (
		player_id INTEGER PRIMARY KEY REFERENCES players(id),
		rating INTEGER NOT NULL DEFAULT 1000,
		games_played INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		draws INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL DEFAULT '',
		duration REAL NOT NULL DEFAULT 0,
		winner_side INTEGER NOT NULL DEFAULT 0,
		quality REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id TEXT NOT NULL REFERENCES matches(id),
		player_id INTEGER NOT NULL REFERENCES players(id),
		side INTEGER NOT NULL DEFAULT 0,
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		damage_dealt INTEGER NOT NULL DEFAULT 0,
		rating_before INTEGER NOT NULL DEFAULT 0,
		rating_after INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, player_id)
	);

	CREATE TABLE IF NOT EXISTS cheat_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		participant_id TEXT NOT NULL,
		points INTEGER NOT NULL,
		severity TEXT NOT NULL,
		flags TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		participant_id TEXT,
		match_id TEXT,
		data TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_match_players_player ON match_players(player_id);
	CREATE INDEX IF NOT EXISTS idx_cheat_reports_participant ON cheat_reports(participant_id);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CreatePlayer creates a new player account and its rating row
func (db *DB) CreatePlayer(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO players (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	_, err = db.conn.Exec("INSERT INTO ratings (player_id, rating) VALUES (?, ?)", id, DefaultRating)
	return id, err
}

// GetPlayerByUsername returns a player by username, nil if absent
func (db *DB) GetPlayerByUsername(username string) (*PlayerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM players WHERE username = ?",
		username,
	)
	p := &PlayerRow{}
	err := row.Scan(&p.ID, &p.Username, &p.PassHash, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// GetPlayerByID returns a player by ID, nil if absent
func (db *DB) GetPlayerByID(id int64) (*PlayerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM players WHERE id = ?",
		id,
	)
	p := &PlayerRow{}
	err := row.Scan(&p.ID, &p.Username, &p.PassHash, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM players WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetRating returns a player's competitive record, nil if absent
func (db *DB) GetRating(playerID int64) (*RatingRow, error) {
	row := db.conn.QueryRow(
		"SELECT player_id, rating, games_played, wins, losses, draws FROM ratings WHERE player_id = ?",
		playerID,
	)
	r := &RatingRow{}
	err := row.Scan(&r.PlayerID, &r.Rating, &r.GamesPlayed, &r.Wins, &r.Losses, &r.Draws)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// SettleRating records one game result for a player. actual is 1/0.5/0.
func (db *DB) SettleRating(playerID int64, newRating int, actual float64) error {
	winInc, lossInc, drawInc := 0, 0, 0
	switch actual {
	case ResultWin:
		winInc = 1
	case ResultLoss:
		lossInc = 1
	default:
		drawInc = 1
	}
	_, err := db.conn.Exec(`
		UPDATE ratings SET
			rating = ?,
			games_played = games_played + 1,
			wins = wins + ?,
			losses = losses + ?,
			draws = draws + ?
		WHERE player_id = ?`,
		newRating, winInc, lossInc, drawInc, playerID,
	)
	return err
}

// RecordMatch persists a completed match
func (db *DB) RecordMatch(id, mode string, duration float64, winnerSide int, quality float64) error {
	_, err := db.conn.Exec(
		"INSERT INTO matches (id, mode, duration, winner_side, quality) VALUES (?, ?, ?, ?, ?)",
		id, mode, duration, winnerSide, quality,
	)
	return err
}

// RecordMatchPlayer persists one player's line for a match
func (db *DB) RecordMatchPlayer(r MatchPlayerRow) error {
	_, err := db.conn.Exec(
		`INSERT INTO match_players (match_id, player_id, side, kills, deaths, damage_dealt, rating_before, rating_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MatchID, r.PlayerID, r.Side, r.Kills, r.Deaths, r.DamageDealt, r.RatingBefore, r.RatingAfter,
	)
	return err
}

// RecordCheatReport persists a suspicion report
func (db *DB) RecordCheatReport(report CheatReportMsg) error {
	_, err := db.conn.Exec(
		"INSERT INTO cheat_reports (participant_id, points, severity, flags) VALUES (?, ?, ?, ?)",
		report.ParticipantID, report.Points, report.Severity, strings.Join(report.Flags, ","),
	)
	return err
}

// GetCheatReports returns reports for one participant, newest first
func (db *DB) GetCheatReports(participantID string, limit int) ([]CheatReportRow, error) {
	rows, err := db.conn.Query(
		`SELECT id, participant_id, points, severity, flags, created_at
		 FROM cheat_reports WHERE participant_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		participantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CheatReportRow
	for rows.Next() {
		var r CheatReportRow
		if err := rows.Scan(&r.ID, &r.ParticipantID, &r.Points, &r.Severity, &r.Flags, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// LeaderboardEntry is one row in the rating leaderboard
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Games    int    `json:"games"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

// GetLeaderboard returns the top rated players
func (db *DB) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	rows, err := db.conn.Query(`
		SELECT p.username, r.rating, r.games_played, r.wins, r.losses
		FROM ratings r JOIN players p ON p.id = r.player_id
		WHERE p.is_guest = 0
		ORDER BY r.rating DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LeaderboardEntry
	rank := 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Rating, &e.Games, &e.Wins, &e.Losses); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetSetting returns a settings value, "" if absent
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// SetSetting upserts a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// GetMatchHistory returns recent match lines for a player
func (db *DB) GetMatchHistory(playerID int64, limit int) ([]MatchPlayerRow, error) {
	rows, err := db.conn.Query(`
		SELECT mp.match_id, mp.player_id, mp.side, mp.kills, mp.deaths, mp.damage_dealt, mp.rating_before, mp.rating_after
		FROM match_players mp
		JOIN matches m ON m.id = mp.match_id
		WHERE mp.player_id = ?
		ORDER BY m.created_at DESC
		LIMIT ?`,
		playerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MatchPlayerRow
	for rows.Next() {
		var r MatchPlayerRow
		if err := rows.Scan(&r.MatchID, &r.PlayerID, &r.Side, &r.Kills, &r.Deaths, &r.DamageDealt, &r.RatingBefore, &r.RatingAfter); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
