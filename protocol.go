package main

import (
	"encoding/json"
	"time"
)

// Client -> Server message types
const (
	MsgConnect       = "connect"
	MsgAuthenticate  = "authenticate"
	MsgHeartbeat     = "heartbeat"
	MsgDisconnect    = "disconnect"
	MsgQueueJoin     = "queue_join"
	MsgQueueLeave    = "queue_leave"
	MsgMovementInput = "movement_input"
	MsgAbilityUse    = "ability_use"
)

// Server -> Client message types
const (
	MsgConnectAck   = "connect_ack"
	MsgAuthSuccess  = "authenticate_success"
	MsgHeartbeatAck = "heartbeat_ack"
	MsgError        = "error"
	MsgQueueUpdated = "queue_updated"
	MsgMatchFound   = "match_found"
	MsgStateUpdate  = "game_state_update"
	MsgDamageEvent  = "damage_event"
	MsgKillEvent    = "kill_event"
	MsgMatchStart   = "match_start"
	MsgMatchEnd     = "match_end"
	MsgCheatReport  = "cheat_report"
)

// Error codes carried in ErrorMsg
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeAuthFailed   = "auth_failed"
	ErrCodeQueueFull    = "queue_full"
	ErrCodeQueueTimeout = "queue_timeout"
	ErrCodeNotInMatch   = "not_in_match"
	ErrCodeServerFull   = "server_full"
)

// Envelope wraps all outgoing messages. ID is the correlation id: responses
// to a request echo the request's id, server pushes carry id 0 (omitted).
type Envelope struct {
	ID     uint64      `json:"id,omitempty"`
	Type   string      `json:"type"`
	Data   interface{} `json:"data,omitempty"`
	TS     int64       `json:"ts,omitempty"`
	Sender string      `json:"sender,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	ID     uint64          `json:"id,omitempty"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	TS     int64           `json:"ts,omitempty"`
	Sender string          `json:"sender,omitempty"`
}

// NewEnvelope stamps an outgoing envelope with the current time
func NewEnvelope(id uint64, msgType string, data interface{}) Envelope {
	return Envelope{ID: id, Type: msgType, Data: data, TS: time.Now().UnixMilli()}
}

// ConnectMsg opens a session. Name is the display name for guests.
type ConnectMsg struct {
	Name string `json:"name,omitempty"`
}

// ConnectAckMsg confirms the session and assigns the client id
type ConnectAckMsg struct {
	ClientID   string `json:"cid"`
	ServerTime int64  `json:"st"`
}

// AuthenticateMsg carries one of three auth modes: "register", "login", "token"
type AuthenticateMsg struct {
	Mode     string `json:"mode"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// AuthSuccessMsg confirms authentication
type AuthSuccessMsg struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	Token    string `json:"token"`
	Rating   int    `json:"rating"`
	Games    int    `json:"games"`
}

// HeartbeatMsg is sent on a fixed interval once authenticated. RTT reports
// the client's last measured round trip in milliseconds (0 if unknown).
type HeartbeatMsg struct {
	SentAt int64 `json:"sent"`
	RTT    int64 `json:"rtt,omitempty"`
}

// HeartbeatAckMsg echoes the heartbeat
type HeartbeatAckMsg struct {
	SentAt     int64 `json:"sent"`
	ServerTime int64 `json:"st"`
}

// ErrorMsg reports a failure to the client
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueueJoinMsg enters matchmaking
type QueueJoinMsg struct {
	Mode          string `json:"mode"`
	GroupSize     int    `json:"group_size"`
	Rating        int    `json:"rating,omitempty"` // advisory; server trusts its own record
	PreferredHero string `json:"hero,omitempty"`
}

// QueueLeaveMsg exits matchmaking. Server-initiated removals carry a reason.
type QueueLeaveMsg struct {
	Reason string `json:"reason,omitempty"`
}

// QueueUpdatedMsg reports queue position and estimated wait (seconds)
type QueueUpdatedMsg struct {
	Position      int     `json:"position"`
	EstimatedWait float64 `json:"est_wait"`
	SearchRange   int     `json:"range"`
}

// MatchFoundMsg announces a formed match to its participants
type MatchFoundMsg struct {
	MatchID string   `json:"mid"`
	SideA   []string `json:"side_a"`
	SideB   []string `json:"side_b"`
	Quality float64  `json:"quality"`
}

// MovementInputMsg is a normalized movement direction from the client.
// PX/PY optionally report the client's predicted position, which the server
// checks for plausibility.
type MovementInputMsg struct {
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
	PX        float64 `json:"px,omitempty"`
	PY        float64 `json:"py,omitempty"`
	Timestamp int64   `json:"ts"`
}

// AbilityUseMsg requests an ability cast at a target entity or position
type AbilityUseMsg struct {
	AbilityKey string  `json:"key"`
	TargetID   string  `json:"target,omitempty"`
	TX         float64 `json:"tx,omitempty"`
	TY         float64 `json:"ty,omitempty"`
	Timestamp  int64   `json:"ts"`
}

// AbilityStatus is the per-ability slice of an entity snapshot
type AbilityStatus struct {
	Key      string  `json:"k" msgpack:"k"`
	Cooldown float64 `json:"cd" msgpack:"cd"`
	LastUse  float64 `json:"lu,omitempty" msgpack:"lu"`
}

// EntitySnapshot is the authoritative per-entity state on the wire.
// Broadcast inside GameStateUpdate msgpack frames, so it carries msgpack tags.
type EntitySnapshot struct {
	ID        string          `json:"id" msgpack:"id"`
	Team      int             `json:"team" msgpack:"t"`
	X         float64         `json:"x" msgpack:"x"`
	Y         float64         `json:"y" msgpack:"y"`
	VX        float64         `json:"vx" msgpack:"vx"`
	VY        float64         `json:"vy" msgpack:"vy"`
	HP        int             `json:"hp" msgpack:"hp"`
	MaxHP     int             `json:"mhp" msgpack:"mhp"`
	Mana      int             `json:"mp" msgpack:"mp"`
	MaxMana   int             `json:"mmp" msgpack:"mmp"`
	Alive     bool            `json:"a" msgpack:"a"`
	Level     int             `json:"lv" msgpack:"lv"`
	Abilities []AbilityStatus `json:"ab,omitempty" msgpack:"ab"`
}

// GameStateUpdate is the full authoritative snapshot, msgpack-encoded and
// sent as a binary frame at the broadcast rate. Seq is strictly increasing;
// receivers discard updates older than the last applied one.
type GameStateUpdate struct {
	MatchID    string           `json:"mid" msgpack:"mid"`
	Seq        uint64           `json:"seq" msgpack:"seq"`
	MatchTime  float64          `json:"mt" msgpack:"mt"`
	Entities   []EntitySnapshot `json:"e" msgpack:"e"`
	Scores     map[int]int      `json:"sc,omitempty" msgpack:"sc"`
	Objectives []string         `json:"obj,omitempty" msgpack:"obj"`
}

// DamageEventMsg is broadcast when damage lands
type DamageEventMsg struct {
	SourceID   string  `json:"src"`
	TargetID   string  `json:"tgt"`
	Amount     int     `json:"amt"`
	IsCritical bool    `json:"crit,omitempty"`
	IsKill     bool    `json:"kill,omitempty"`
	MatchTime  float64 `json:"mt"`
}

// KillEventMsg is broadcast on a kill
type KillEventMsg struct {
	KillerID  string   `json:"kid"`
	VictimID  string   `json:"vid"`
	AssistIDs []string `json:"assists,omitempty"`
}

// MatchStartMsg signals the match went live
type MatchStartMsg struct {
	MatchID string  `json:"mid"`
	Mode    string  `json:"mode"`
	Team    int     `json:"team"`
	TickHz  int     `json:"tick_hz"`
	TimeCap float64 `json:"time_cap"`
}

// MatchEndStats is the per-participant line in MatchEndMsg
type MatchEndStats struct {
	ParticipantID string `json:"pid"`
	Kills         int    `json:"kills"`
	Deaths        int    `json:"deaths"`
	DamageDealt   int    `json:"damage"`
	RatingBefore  int    `json:"rating_before"`
	RatingAfter   int    `json:"rating_after"`
}

// MatchEndMsg closes out a match with settlement results
type MatchEndMsg struct {
	MatchID    string          `json:"mid"`
	WinnerSide int             `json:"winner"`
	Duration   float64         `json:"duration"`
	Stats      []MatchEndStats `json:"stats"`
}

// CheatReportMsg is emitted once per accumulation cycle when a participant's
// suspicion crosses the report threshold
type CheatReportMsg struct {
	ParticipantID string   `json:"pid"`
	Points        int      `json:"points"`
	Flags         []string `json:"flags"`
	Severity      string   `json:"severity"`
}
