package xshell

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xshell-terminal/xshell-go/internal/protocol"
	"github.com/xshell-terminal/xshell-go/internal/recorder"
	"github.com/xshell-terminal/xshell-go/internal/scrollback"
)

// Client is an asynchronous x-shell protocol engine. One receive loop per
// connection processes frames strictly sequentially: every observable
// effect (response resolution, event dispatch, session state change)
// happens in frame-arrival order. Client is safe for concurrent use.
type Client struct {
	url string
	cfg config
	log zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	state      ConnState
	serverInfo *ServerInfo
	sess       *Session
	loopDone   chan struct{}
	reconnects int

	writeMu sync.Mutex // serializes whole frames on the wire

	reqSeq    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	closing  atomic.Bool
	closedCh chan struct{}

	topics *topics
	reader *streamReader
	back   *scrollback.Buffer
	rec    *recorder.Recorder
}

// New creates a client for the server at url (e.g.
// "ws://localhost:3000/terminal"). The client does not touch the network
// until Connect.
func New(url string, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Client{
		url:      url,
		cfg:      cfg,
		log:      cfg.log.With().Str("component", "xshell").Logger(),
		state:    StateDisconnected,
		pending:  make(map[string]*pendingRequest),
		closedCh: make(chan struct{}),
		reader:   newStreamReader(),
		back:     cfg.newScrollback(),
	}
	rec, err := cfg.newRecorder()
	if err != nil {
		c.log.Warn().Err(err).Msg("cast recording unavailable")
	}
	c.rec = rec
	c.topics = newTopics(func(r any) {
		c.log.Error().Interface("panic", r).Msg("event handler panicked")
	})
	return c
}

// URL returns the configured endpoint.
func (c *Client) URL() string { return c.url }

// State returns the current transport state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ServerInfo returns the capabilities captured at connect time, or nil if
// the client never connected.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverInfo == nil {
		return nil
	}
	info := *c.serverInfo
	return &info
}

// Session returns a copy of the attached session's local view, or false if
// the client is idle.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Session{}, false
	}
	return *c.sess, true
}

// Scrollback returns the cached tail of session output, if WithScrollback
// was configured.
func (c *Client) Scrollback() []byte {
	if c.back == nil {
		return nil
	}
	return c.back.Bytes()
}

// Connect establishes the WebSocket transport. The connection is usable
// only once the server's initial serverInfo frame has been received; any
// other first frame or transport failure leaves the client disconnected.
func (c *Client) Connect(ctx context.Context) (*ServerInfo, error) {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return nil, ErrClientClosed
	case StateConnected:
		info := *c.serverInfo
		c.mu.Unlock()
		return &info, nil
	case StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return nil, fmt.Errorf("connect already in progress")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, info, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.serverInfo = info
	c.state = StateConnected
	c.loopDone = done
	c.mu.Unlock()

	go c.runLoop(conn, done)

	c.log.Info().Str("url", c.url).Bool("docker", info.DockerEnabled).Msg("connected")
	c.topics.connect.Publish(struct{}{})

	out := *info
	return &out, nil
}

// dial opens the transport and performs the serverInfo handshake.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, *ServerInfo, error) {
	conn, _, err := c.cfg.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, nil, &ConnectionError{Op: "dial", Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, nil, &ConnectionError{Op: "handshake", Err: err}
	}
	conn.SetReadDeadline(time.Time{})

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		conn.Close()
		return nil, nil, &ConnectionError{Op: "handshake", Err: err}
	}
	if env.Type != protocol.MessageTypeServerInfo || env.Info == nil {
		conn.Close()
		return nil, nil, &ConnectionError{
			Op:  "handshake",
			Err: fmt.Errorf("expected serverInfo, got %q", env.Type),
		}
	}

	return conn, env.Info, nil
}

// runLoop is the single receive loop. It survives reconnects: after an
// unexpected closure it redials (when enabled) and resumes reading, so
// there is never more than one dispatch context per client.
func (c *Client) runLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		c.readFrames(conn)

		if c.closing.Load() {
			return
		}

		// Unexpected closure: every outstanding request fails, the local
		// session view is gone, and consumers learn about it before any
		// reconnect attempt.
		connErr := &ConnectionError{Op: "read", Err: fmt.Errorf("connection closed unexpectedly")}
		c.detachSession()
		c.failPending(connErr)
		c.topics.disconnect.Publish(struct{}{})

		if !c.cfg.reconnect {
			c.setState(StateDisconnected)
			c.topics.errs.Publish(ErrorEvent{Err: connErr})
			return
		}

		c.setState(StateReconnecting)
		next, ok := c.redial()
		if !ok {
			if !c.closing.Load() {
				c.setState(StateDisconnected)
				c.topics.errs.Publish(ErrorEvent{Err: &ConnectionError{
					Op:  "reconnect",
					Err: fmt.Errorf("gave up after %d attempts", c.cfg.reconnectAttempts),
				}})
			}
			return
		}
		conn = next
	}
}

// readFrames reads and dispatches until the transport errors.
func (c *Client) readFrames(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !c.closing.Load() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("transport closed")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Warn().Err(err).Msg("dropping invalid frame")
			continue
		}
		c.dispatch(&env)
	}
}

// redial retries the connection with a linearly increasing delay. Returns
// false once the attempt budget is spent or the client is closing.
func (c *Client) redial() (*websocket.Conn, bool) {
	for attempt := 1; attempt <= c.cfg.reconnectAttempts; attempt++ {
		select {
		case <-time.After(time.Duration(attempt) * c.cfg.reconnectDelay):
		case <-c.closedCh:
			return nil, false
		}

		c.log.Info().Int("attempt", attempt).Msg("reconnecting")
		conn, info, err := c.dial(context.Background())
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			conn.Close()
			return nil, false
		}
		c.conn = conn
		c.serverInfo = info
		c.state = StateConnected
		c.reconnects++
		c.mu.Unlock()

		c.topics.connect.Publish(struct{}{})
		return conn, true
	}
	return nil, false
}

// Disconnect tears down the client: it stops the receive loop, waits for
// it to finish its in-flight dispatch, then releases the transport.
// Idempotent and safe from any state; the client cannot be reused after.
func (c *Client) Disconnect() error {
	if c.closing.Swap(true) {
		c.awaitLoop()
		return nil
	}
	close(c.closedCh)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	c.sess = nil
	c.mu.Unlock()

	if conn != nil {
		// Best-effort close handshake; the hard Close is what unblocks the
		// receive loop.
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.awaitLoop()

	c.failPending(ErrClientClosed)
	c.topics.disconnect.Publish(struct{}{})
	if c.rec != nil {
		c.rec.Close()
	}
	c.log.Info().Msg("disconnected")
	return nil
}

func (c *Client) awaitLoop() {
	c.mu.Lock()
	done := c.loopDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// send marshals one frame and writes it atomically with respect to other
// senders. Sends fail fast unless the transport is Connected.
func (c *Client) send(v any) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// setState applies a state transition that needs no other bookkeeping.
func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}

// dispatch routes one inbound frame: correlated responses resolve their
// pending request, everything else is an event. Runs on the receive loop
// only; the next frame is not read until this returns.
func (c *Client) dispatch(env *protocol.Envelope) {
	if env.RequestID != "" {
		c.resolvePending(env)
		return
	}

	switch env.Type {
	case protocol.MessageTypeData:
		c.handleData(env.SessionID, env.Data)
	case protocol.MessageTypeExit:
		c.handleExit(env.SessionID, env.ExitStatus())
	case protocol.MessageTypeError:
		c.handleServerError(env.SessionID, env.ErrorMessage())
	case protocol.MessageTypeClientJoined:
		c.handleClientCount(env, c.topics.clientJoined)
	case protocol.MessageTypeClientLeft:
		c.handleClientCount(env, c.topics.clientLeft)
	case protocol.MessageTypeSessionClosed:
		c.handleSessionClosed(env.SessionID, env.Reason)
	case protocol.MessageTypeServerInfo:
		// Already consumed during the handshake; a repeat is harmless.
	default:
		c.log.Debug().Str("type", string(env.Type)).Msg("ignoring unknown event")
	}
}

// relevant reports whether a session-scoped event targets the attached
// session. Events without a session id are assumed to target it.
func (c *Client) relevant(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return false
	}
	return sessionID == "" || sessionID == c.sess.ID
}

func (c *Client) handleData(sessionID, data string) {
	c.topics.data.Publish(DataEvent{SessionID: sessionID, Data: data})
	if !c.relevant(sessionID) {
		return
	}
	c.captureOutput(data)
	c.reader.push(streamEvent{kind: eventData, data: data})
}

func (c *Client) handleExit(sessionID string, code int) {
	relevant := c.relevant(sessionID)
	c.topics.exit.Publish(ExitEvent{SessionID: sessionID, Code: code})
	if !relevant {
		return
	}
	c.detachSession()
	c.reader.push(streamEvent{kind: eventExit, code: code})
}

func (c *Client) handleServerError(sessionID, message string) {
	err := &SessionError{Message: message}
	c.topics.errs.Publish(ErrorEvent{SessionID: sessionID, Err: err})
	if c.relevant(sessionID) {
		c.reader.push(streamEvent{kind: eventError, errMsg: message})
	}
}

func (c *Client) handleClientCount(env *protocol.Envelope, topic interface{ Publish(ClientEvent) }) {
	count := 0
	if env.ClientCount != nil {
		count = *env.ClientCount
	}
	c.mu.Lock()
	if c.sess != nil && c.sess.ID == env.SessionID {
		c.sess.ClientCount = count
	}
	c.mu.Unlock()
	topic.Publish(ClientEvent{SessionID: env.SessionID, ClientCount: count})
}

func (c *Client) handleSessionClosed(sessionID, reason string) {
	c.mu.Lock()
	attached := c.sess != nil && c.sess.ID == sessionID
	c.mu.Unlock()
	if attached {
		c.detachSession()
	}
	c.topics.sessionClosed.Publish(SessionClosedEvent{SessionID: sessionID, Reason: reason})
}

// captureOutput feeds the optional scrollback cache and cast recording.
func (c *Client) captureOutput(data string) {
	if c.back != nil {
		c.back.Append([]byte(data))
	}
	if c.rec != nil {
		if err := c.rec.Output(data); err != nil {
			c.log.Warn().Err(err).Msg("cast recording failed")
		}
	}
}

// attachSession installs a freshly learned session and resets the stream
// reader so stale events from an earlier session cannot leak into reads.
func (c *Client) attachSession(sess *Session) {
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.reader.reset()
	if c.back != nil {
		c.back.Reset()
	}
	if c.rec != nil {
		if err := c.rec.Start(sess.Cols, sess.Rows, sess.ID); err != nil {
			c.log.Warn().Err(err).Msg("cast recording not started")
		}
	}
}

func (c *Client) detachSession() {
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
}
