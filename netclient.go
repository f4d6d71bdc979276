package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState is the lifecycle of a client-side connection
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

const (
	reconnectBase     = 1 * time.Second
	reconnectMax      = 8 * time.Second
	reconnectAttempts = 4
	requestTimeout    = 10 * time.Second
	heartbeatInterval = 5 * time.Second
	offlineQueueCap   = 512
)

var (
	ErrConnClosed      = errors.New("connection closed")
	ErrRequestTimeout  = errors.New("request timed out")
	ErrReconnectGaveUp = errors.New("reconnect attempts exhausted")
)

// Handler processes a server push for one message type
type Handler func(InEnvelope)

// Conn is the client side of the wire protocol: it correlates requests with
// responses by envelope id, queues outgoing messages while offline and
// flushes them in order after reconnecting, and reconnects with bounded
// exponential backoff before surfacing a hard failure.
type Conn struct {
	url string
	log *zap.Logger

	mu    sync.Mutex
	ws    *websocket.Conn
	state ConnState

	nextID  uint64
	pending map[uint64]chan InEnvelope

	handlerMu sync.RWMutex
	handlers  map[string][]Handler
	onBinary  func([]byte)
	onDown    func(error)

	offline [][]byte // FIFO, flushed in order on reconnect

	clientID string
	latency  float64 // smoothed RTT, milliseconds

	stop     chan struct{}
	stopOnce sync.Once
}

// NewConn creates a client connection for the given ws:// URL
func NewConn(url string, log *zap.Logger) *Conn {
	return &Conn{
		url:      url,
		log:      log,
		state:    StateDisconnected,
		pending:  make(map[uint64]chan InEnvelope),
		handlers: make(map[string][]Handler),
		stop:     make(chan struct{}),
	}
}

// On registers a handler for a server-pushed message type
func (c *Conn) On(msgType string, h Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[msgType] = append(c.handlers[msgType], h)
}

// OnBinary registers the handler for binary state frames
func (c *Conn) OnBinary(h func([]byte)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onBinary = h
}

// OnDown registers the handler invoked when the connection fails for good
func (c *Conn) OnDown(h func(error)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onDown = h
}

// State returns the current connection state
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ClientID returns the server-assigned session id, "" before CONNECT
func (c *Conn) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Latency returns the smoothed round-trip estimate in milliseconds
func (c *Conn) Latency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

// Dial establishes the WebSocket and performs the CONNECT handshake.
// On success the read and heartbeat loops are running.
func (c *Conn) Dial(ctx context.Context, name string) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return errors.New("already connected")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(ws)

	resp, err := c.Request(ctx, MsgConnect, ConnectMsg{Name: name})
	if err != nil {
		c.Close()
		return err
	}
	var ack ConnectAckMsg
	if err := json.Unmarshal(resp.Data, &ack); err != nil {
		c.Close()
		return err
	}
	c.mu.Lock()
	c.clientID = ack.ClientID
	c.mu.Unlock()

	go c.heartbeatLoop()
	c.flushOffline()
	return nil
}

// Request sends an envelope and blocks until the correlated response
// arrives, the timeout passes, or the context is canceled. While offline
// the request fails immediately rather than queueing: queued delivery is
// for fire-and-forget sends only.
func (c *Conn) Request(ctx context.Context, msgType string, data interface{}) (InEnvelope, error) {
	id := atomic.AddUint64(&c.nextID, 1)
	ch := make(chan InEnvelope, 1)

	c.mu.Lock()
	if c.state != StateConnected && c.state != StateConnecting {
		c.mu.Unlock()
		return InEnvelope{}, ErrConnClosed
	}
	c.pending[id] = ch
	ws := c.ws
	c.mu.Unlock()

	payload, err := json.Marshal(NewEnvelope(id, msgType, data))
	if err != nil {
		c.dropPending(id)
		return InEnvelope{}, err
	}
	if err := c.write(ws, payload); err != nil {
		c.dropPending(id)
		return InEnvelope{}, err
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			// Pending set was flushed by a reconnect
			return InEnvelope{}, ErrConnClosed
		}
		if resp.Type == MsgError {
			var em ErrorMsg
			_ = json.Unmarshal(resp.Data, &em)
			return resp, errors.New(em.Message)
		}
		return resp, nil
	case <-timer.C:
		c.dropPending(id)
		return InEnvelope{}, ErrRequestTimeout
	case <-ctx.Done():
		c.dropPending(id)
		return InEnvelope{}, ctx.Err()
	case <-c.stop:
		return InEnvelope{}, ErrConnClosed
	}
}

// Send delivers a fire-and-forget message. While disconnected it is queued
// FIFO and flushed in order once the connection is back.
func (c *Conn) Send(msgType string, data interface{}) error {
	payload, err := json.Marshal(NewEnvelope(0, msgType, data))
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateConnected {
		if c.state == StateFailed {
			c.mu.Unlock()
			return ErrConnClosed
		}
		if len(c.offline) >= offlineQueueCap {
			c.mu.Unlock()
			return errors.New("offline queue full")
		}
		c.offline = append(c.offline, payload)
		c.mu.Unlock()
		return nil
	}
	ws := c.ws
	c.mu.Unlock()

	return c.write(ws, payload)
}

// Close tears the connection down for good
func (c *Conn) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mu.Lock()
	c.state = StateDisconnected
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

func (c *Conn) write(ws *websocket.Conn, payload []byte) error {
	if ws == nil {
		return ErrConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			go c.reconnect()
			return
		}

		if msgType == websocket.BinaryMessage {
			c.handlerMu.RLock()
			h := c.onBinary
			c.handlerMu.RUnlock()
			if h != nil {
				h(raw)
			}
			continue
		}

		var env InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Debug("bad frame", zap.Error(err))
			continue
		}

		// Correlated response wins over type handlers
		if env.ID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			if ok {
				delete(c.pending, env.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- env
				continue
			}
		}

		c.handlerMu.RLock()
		handlers := c.handlers[env.Type]
		c.handlerMu.RUnlock()
		for _, h := range handlers {
			h(env)
		}
	}
}

// reconnect retries with exponential backoff (1s, 2s, 4s, 8s). If every
// attempt fails the connection is marked failed and the failure surfaced.
func (c *Conn) reconnect() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateReconnecting
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	// In-flight requests cannot complete across a reconnect
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	backoff := reconnectBase
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-c.stop:
			return
		case <-time.After(backoff):
		}

		ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err == nil {
			c.mu.Lock()
			c.ws = ws
			c.state = StateConnected
			c.mu.Unlock()
			go c.readLoop(ws)
			c.log.Info("reconnected", zap.Int("attempt", attempt))
			c.flushOffline()
			return
		}
		c.log.Warn("reconnect failed",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if backoff < reconnectMax {
			backoff *= 2
		}
	}

	c.setState(StateFailed)
	c.handlerMu.RLock()
	down := c.onDown
	c.handlerMu.RUnlock()
	if down != nil {
		down(ErrReconnectGaveUp)
	}
}

// flushOffline drains the FIFO queue in order
func (c *Conn) flushOffline() {
	c.mu.Lock()
	queued := c.offline
	c.offline = nil
	ws := c.ws
	c.mu.Unlock()

	for i, payload := range queued {
		if err := c.write(ws, payload); err != nil {
			// Put the unsent tail back at the front
			c.mu.Lock()
			c.offline = append(queued[i:], c.offline...)
			c.mu.Unlock()
			return
		}
	}
}

// heartbeatLoop sends a heartbeat on a fixed interval, folding each ack's
// round trip into the latency estimate. A missed ack degrades the estimate
// but never tears down the connection on its own.
func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		if c.State() != StateConnected {
			continue
		}

		sent := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), heartbeatInterval)
		_, err := c.Request(ctx, MsgHeartbeat, HeartbeatMsg{
			SentAt: sent.UnixMilli(),
			RTT:    int64(c.Latency()),
		})
		cancel()

		c.mu.Lock()
		if err != nil {
			// Missed ack: degrade toward the interval ceiling
			c.latency = c.latency*0.5 + float64(heartbeatInterval.Milliseconds())*0.5
		} else {
			rtt := float64(time.Since(sent).Milliseconds())
			if c.latency == 0 {
				c.latency = rtt
			} else {
				c.latency = c.latency*0.8 + rtt*0.2
			}
		}
		c.mu.Unlock()
	}
}
