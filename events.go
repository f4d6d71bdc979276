package main

import (
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types for lifecycle telemetry
const (
	EvtConnect      = "connect"
	EvtDisconnect   = "disconnect"
	EvtAuth         = "auth"
	EvtQueueJoin    = "queue_join"
	EvtQueueLeave   = "queue_leave"
	EvtQueueTimeout = "queue_timeout"
	EvtMatchFormed  = "match_formed"
	EvtMatchStart   = "match_start"
	EvtMatchEnd     = "match_end"
	EvtCheatReport  = "cheat_report"
)

// Event is a single trackable lifecycle event
type Event struct {
	Type          string
	ParticipantID string
	MatchID       string
	Data          string
	Timestamp     time.Time
}

// Events batches lifecycle events and writes them to the database from a
// background goroutine so the hot paths never block on disk.
type Events struct {
	db     *DB
	log    *zap.Logger
	events chan Event
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewEvents creates and starts the background writer
func NewEvents(db *DB, log *zap.Logger) *Events {
	e := &Events{
		db:     db,
		log:    log,
		events: make(chan Event, 1024),
		stop:   make(chan struct{}),
	}
	e.wg.Add(1)
	go e.writer()
	return e
}

// Track enqueues an event. Non-blocking: a full buffer drops the event
// rather than stalling the caller. Safe on a nil receiver.
func (e *Events) Track(evtType, participantID, matchID, data string) {
	if e == nil {
		return
	}
	select {
	case e.events <- Event{
		Type:          evtType,
		ParticipantID: participantID,
		MatchID:       matchID,
		Data:          data,
		Timestamp:     time.Now().UTC(),
	}:
	default:
	}
}

// Stop flushes remaining events and shuts the writer down
func (e *Events) Stop() {
	if e == nil {
		return
	}
	close(e.stop)
	e.wg.Wait()
}

func (e *Events) writer() {
	defer e.wg.Done()

	batch := make([]Event, 0, 64)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-e.events:
			batch = append(batch, evt)
			if len(batch) >= 50 {
				e.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				e.flush(batch)
				batch = batch[:0]
			}
		case <-e.stop:
			// Drain without closing: a concurrent Track may still be
			// sending, and a send on a closed channel panics.
			for {
				select {
				case evt := <-e.events:
					batch = append(batch, evt)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				e.flush(batch)
			}
			return
		}
	}
}

func (e *Events) flush(batch []Event) {
	if e.db == nil || len(batch) == 0 {
		return
	}
	tx, err := e.db.conn.Begin()
	if err != nil {
		e.log.Error("events: begin tx", zap.Error(err))
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO events (event_type, participant_id, match_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		e.log.Error("events: prepare", zap.Error(err))
		return
	}
	defer stmt.Close()

	for _, evt := range batch {
		pid := sql.NullString{String: evt.ParticipantID, Valid: evt.ParticipantID != ""}
		mid := sql.NullString{String: evt.MatchID, Valid: evt.MatchID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, pid, mid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			e.log.Error("events: insert", zap.Error(err))
		}
	}
	tx.Commit()
}

// EventCounts returns counts per event type over the last N days
func (e *Events) EventCounts(days int) (map[string]int, error) {
	if e == nil || e.db == nil {
		return nil, nil
	}
	rows, err := e.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}
