package main

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120
	maxNameLen        = 16
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	log        *zap.Logger

	participantID string // session client id, "" until CONNECT
	userID        int64  // 0 = unauthenticated/guest
	username      string

	// matchID is written by the match manager's goroutine
	matchMu sync.Mutex
	matchID string

	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
		log:        hub.log,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("ws read", zap.Error(err))
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			c.log.Warn("rate limit exceeded, disconnecting", zap.String("addr", c.remoteAddr))
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends an envelope to the client
func (c *Client) SendJSON(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.log.Error("marshal", zap.Error(err))
		return
	}
	c.sendRaw(data)
}

// sendRaw queues pre-marshaled bytes as a text message
func (c *Client) sendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF marker byte so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// SetMatch records the match the client is playing in ("" to clear)
func (c *Client) SetMatch(matchID string) {
	c.matchMu.Lock()
	c.matchID = matchID
	c.matchMu.Unlock()
}

// InMatch reports whether the client is bound to a running match
func (c *Client) InMatch() bool {
	c.matchMu.Lock()
	defer c.matchMu.Unlock()
	return c.matchID != ""
}

// sendError reports a failure, echoing the request's correlation id
func (c *Client) sendError(id uint64, code, msg string) {
	c.SendJSON(NewEnvelope(id, MsgError, ErrorMsg{Code: code, Message: msg}))
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug("unmarshal", zap.Error(err))
		return
	}

	// Everything but the opening handshake needs a live session
	if c.participantID == "" && env.Type != MsgConnect {
		c.sendError(env.ID, ErrCodeBadRequest, "connect first")
		return
	}

	switch env.Type {
	case MsgConnect:
		c.handleConnect(env)
	case MsgAuthenticate:
		c.handleAuthenticate(env)
	case MsgHeartbeat:
		c.handleHeartbeat(env)
	case MsgDisconnect:
		c.conn.Close()
	case MsgQueueJoin:
		c.handleQueueJoin(env)
	case MsgQueueLeave:
		c.handleQueueLeave(env)
	case MsgMovementInput:
		c.handleMovementInput(env)
	case MsgAbilityUse:
		c.handleAbilityUse(env)
	default:
		c.sendError(env.ID, ErrCodeBadRequest, "unknown message type")
	}
}

func (c *Client) handleConnect(env InEnvelope) {
	if c.participantID != "" {
		c.sendError(env.ID, ErrCodeBadRequest, "already connected")
		return
	}
	var msg ConnectMsg
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			c.sendError(env.ID, ErrCodeBadRequest, "malformed connect")
			return
		}
	}

	name := strings.TrimSpace(msg.Name)
	if name == "" {
		name = GenerateGuestName()
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}

	sess := c.hub.sessions.Create(name)
	if sess == nil {
		c.sendError(env.ID, ErrCodeServerFull, "server full")
		return
	}
	c.participantID = sess.ClientID
	c.username = name
	c.hub.BindParticipant(sess.ClientID, c)
	c.hub.events.Track(EvtConnect, sess.ClientID, "", "")

	c.SendJSON(NewEnvelope(env.ID, MsgConnectAck, ConnectAckMsg{
		ClientID:   sess.ClientID,
		ServerTime: time.Now().UnixMilli(),
	}))
}

func (c *Client) handleAuthenticate(env InEnvelope) {
	var msg AuthenticateMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		c.sendError(env.ID, ErrCodeBadRequest, "malformed authenticate")
		return
	}

	var (
		userID   int64
		username string
		token    string
		err      error
	)
	switch msg.Mode {
	case "register":
		userID, token, err = c.hub.auth.Register(msg.Username, msg.Password)
		username = strings.TrimSpace(msg.Username)
	case "login":
		userID, token, err = c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
		username = msg.Username
	case "token":
		userID, username, err = c.hub.auth.ValidateToken(msg.Token)
		token = msg.Token
	default:
		c.sendError(env.ID, ErrCodeBadRequest, "unknown auth mode")
		return
	}
	if err != nil {
		c.sendError(env.ID, ErrCodeAuthFailed, err.Error())
		return
	}

	c.userID = userID
	c.username = username
	c.hub.sessions.Authenticate(c.participantID, userID, username)
	c.hub.events.Track(EvtAuth, c.participantID, "", msg.Mode)

	rating, games := DefaultRating, 0
	if rec, rerr := c.hub.db.GetRating(userID); rerr == nil && rec != nil {
		rating, games = rec.Rating, rec.GamesPlayed
	}
	c.SendJSON(NewEnvelope(env.ID, MsgAuthSuccess, AuthSuccessMsg{
		UserID:   userID,
		Username: username,
		Token:    token,
		Rating:   rating,
		Games:    games,
	}))
}

func (c *Client) handleHeartbeat(env InEnvelope) {
	var msg HeartbeatMsg
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return
		}
	}
	c.hub.sessions.Heartbeat(c.participantID, msg.RTT)
	c.SendJSON(NewEnvelope(env.ID, MsgHeartbeatAck, HeartbeatAckMsg{
		SentAt:     msg.SentAt,
		ServerTime: time.Now().UnixMilli(),
	}))
}

func (c *Client) handleQueueJoin(env InEnvelope) {
	var msg QueueJoinMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		c.sendError(env.ID, ErrCodeBadRequest, "malformed queue join")
		return
	}
	if c.InMatch() {
		c.sendError(env.ID, ErrCodeBadRequest, "already in a match")
		return
	}
	if msg.Mode == "" {
		msg.Mode = "duel"
	}

	// Authenticated users queue on their persistent rating; guests on the
	// provisional default.
	rating := DefaultRating
	if c.userID != 0 {
		if rec, err := c.hub.db.GetRating(c.userID); err == nil && rec != nil {
			rating = rec.Rating
		}
	}

	members := []RatedParticipant{{ID: c.participantID, Rating: rating}}
	entry, err := c.hub.matchmaker.Join(c.participantID, msg.Mode, members, msg.PreferredHero)
	if err != nil {
		c.sendError(env.ID, ErrCodeQueueFull, err.Error())
		return
	}
	// The matchmaker may have formed a match immediately, in which case the
	// MATCH_FOUND push has already been queued; the entry ack still goes out.
	c.SendJSON(NewEnvelope(env.ID, MsgQueueUpdated, QueueUpdatedMsg{
		Position:    1,
		SearchRange: entry.SearchRange,
	}))
}

func (c *Client) handleQueueLeave(env InEnvelope) {
	left := c.hub.matchmaker.Leave(c.participantID)
	if !left {
		c.sendError(env.ID, ErrCodeBadRequest, "not queued")
		return
	}
	c.hub.events.Track(EvtQueueLeave, c.participantID, "", "")
	c.SendJSON(NewEnvelope(env.ID, MsgQueueUpdated, QueueUpdatedMsg{Position: 0}))
}

func (c *Client) handleMovementInput(env InEnvelope) {
	var msg MovementInputMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return
	}
	w := c.hub.matches.WorldFor(c.participantID)
	if w == nil {
		c.sendError(env.ID, ErrCodeNotInMatch, "not in a match")
		return
	}
	w.HandleMovement(c.participantID, msg)
}

func (c *Client) handleAbilityUse(env InEnvelope) {
	var msg AbilityUseMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return
	}
	w := c.hub.matches.WorldFor(c.participantID)
	if w == nil {
		c.sendError(env.ID, ErrCodeNotInMatch, "not in a match")
		return
	}
	w.HandleAbility(c.participantID, msg)
}
