package xshell

import "github.com/xshell-terminal/xshell-go/internal/eventbus"

// DataEvent carries a chunk of terminal output. SessionID may be empty
// when the server targets the single attached session implicitly.
type DataEvent struct {
	SessionID string
	Data      string
}

// ExitEvent signals that a session's process ended.
type ExitEvent struct {
	SessionID string
	Code      int
}

// ErrorEvent carries a connection- or session-scoped error.
type ErrorEvent struct {
	SessionID string
	Err       error
}

// ClientEvent signals another client joining or leaving a shared session.
type ClientEvent struct {
	SessionID   string
	ClientCount int
}

// SessionClosedEvent signals that the server closed a session.
type SessionClosedEvent struct {
	SessionID string
	Reason    string
}

// topics groups one typed event bus per event kind. Handlers on each topic
// run synchronously in registration order from the receive loop; a
// panicking handler is logged and isolated.
type topics struct {
	connect       *eventbus.Topic[struct{}]
	disconnect    *eventbus.Topic[struct{}]
	data          *eventbus.Topic[DataEvent]
	exit          *eventbus.Topic[ExitEvent]
	errs          *eventbus.Topic[ErrorEvent]
	spawned       *eventbus.Topic[Session]
	clientJoined  *eventbus.Topic[ClientEvent]
	clientLeft    *eventbus.Topic[ClientEvent]
	sessionClosed *eventbus.Topic[SessionClosedEvent]
}

func newTopics(onPanic func(recovered any)) *topics {
	return &topics{
		connect:       eventbus.NewTopic[struct{}](onPanic),
		disconnect:    eventbus.NewTopic[struct{}](onPanic),
		data:          eventbus.NewTopic[DataEvent](onPanic),
		exit:          eventbus.NewTopic[ExitEvent](onPanic),
		errs:          eventbus.NewTopic[ErrorEvent](onPanic),
		spawned:       eventbus.NewTopic[Session](onPanic),
		clientJoined:  eventbus.NewTopic[ClientEvent](onPanic),
		clientLeft:    eventbus.NewTopic[ClientEvent](onPanic),
		sessionClosed: eventbus.NewTopic[SessionClosedEvent](onPanic),
	}
}

// OnConnect registers a handler invoked after each successful connect,
// including reconnects.
func (c *Client) OnConnect(fn func()) {
	c.topics.connect.Subscribe(func(struct{}) { fn() })
}

// OnDisconnect registers a handler invoked when the transport drops or the
// client disconnects.
func (c *Client) OnDisconnect(fn func()) {
	c.topics.disconnect.Subscribe(func(struct{}) { fn() })
}

// OnData registers a handler for terminal output.
func (c *Client) OnData(fn func(DataEvent)) { c.topics.data.Subscribe(fn) }

// OnExit registers a handler for session exit events.
func (c *Client) OnExit(fn func(ExitEvent)) { c.topics.exit.Subscribe(fn) }

// OnError registers a handler for connection- and session-scoped errors.
func (c *Client) OnError(fn func(ErrorEvent)) { c.topics.errs.Subscribe(fn) }

// OnSpawned registers a handler invoked when this client spawns a session.
func (c *Client) OnSpawned(fn func(Session)) { c.topics.spawned.Subscribe(fn) }

// OnClientJoined registers a handler for clients joining the shared session.
func (c *Client) OnClientJoined(fn func(ClientEvent)) { c.topics.clientJoined.Subscribe(fn) }

// OnClientLeft registers a handler for clients leaving the shared session.
func (c *Client) OnClientLeft(fn func(ClientEvent)) { c.topics.clientLeft.Subscribe(fn) }

// OnSessionClosed registers a handler for server-side session closure.
func (c *Client) OnSessionClosed(fn func(SessionClosedEvent)) { c.topics.sessionClosed.Subscribe(fn) }
