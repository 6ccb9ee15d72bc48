package xshell

import (
	"context"
	"fmt"

	"github.com/xshell-terminal/xshell-go/internal/protocol"
)

const (
	defaultCols = 80
	defaultRows = 24
)

// Spawn creates a new terminal session. Valid only while idle: a client
// tracks at most one attached session. Client-supplied option values are
// kept as defaults for any field the server response omits.
func (c *Client) Spawn(ctx context.Context, opts SpawnOptions) (*Session, error) {
	if _, attached := c.Session(); attached {
		return nil, ErrSessionAttached
	}
	if opts.Cols <= 0 {
		opts.Cols = defaultCols
	}
	if opts.Rows <= 0 {
		opts.Rows = defaultRows
	}

	raw, err := protocol.EncodeOptions(&opts)
	if err != nil {
		return nil, fmt.Errorf("encode spawn options: %w", err)
	}
	env := protocol.Envelope{Type: protocol.MessageTypeSpawn, Options: raw}

	res, err := c.request(ctx, env, func(resp *protocol.Envelope) (any, error) {
		if resp.Type != protocol.MessageTypeSpawned {
			return nil, &ProtocolError{Expected: string(protocol.MessageTypeSpawned), Got: string(resp.Type)}
		}
		sess := sessionFromSpawn(resp, &opts)
		c.attachSession(sess)
		c.topics.spawned.Publish(*sess)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	sess := res.(*Session)
	out := *sess
	c.log.Info().Str("sessionId", out.ID).Str("shell", out.Shell).Msg("session spawned")
	return &out, nil
}

// sessionFromSpawn builds the local session view from a spawned response,
// falling back to the caller's options for omitted fields.
func sessionFromSpawn(resp *protocol.Envelope, opts *SpawnOptions) *Session {
	sess := &Session{
		ID:          resp.SessionID,
		Type:        SessionTypeLocal,
		Shell:       resp.Shell,
		Cwd:         resp.Cwd,
		Cols:        resp.Cols,
		Rows:        resp.Rows,
		Container:   resp.Container,
		Label:       opts.Label,
		Accepting:   opts.AllowJoin == nil || *opts.AllowJoin,
		ClientCount: 1,
	}
	if sess.Shell == "" {
		sess.Shell = opts.Shell
	}
	if sess.Cwd == "" {
		sess.Cwd = opts.Cwd
	}
	if sess.Cols == 0 {
		sess.Cols = opts.Cols
	}
	if sess.Rows == 0 {
		sess.Rows = opts.Rows
	}
	if sess.Container == "" {
		sess.Container = opts.Container
	}
	if sess.Container != "" {
		if opts.AttachMode {
			sess.Type = SessionTypeDockerAttach
		} else {
			sess.Type = SessionTypeDockerExec
		}
	}
	return sess
}

// Join attaches to an existing shared session. When history is requested
// and the server returns buffered output, the history is delivered to data
// handlers (and to pending reads) before any live data that follows the
// join response, as a strict prefix of the stream.
func (c *Client) Join(ctx context.Context, opts JoinOptions) (*Session, error) {
	if _, attached := c.Session(); attached {
		return nil, ErrSessionAttached
	}
	if opts.SessionID == "" {
		return nil, &SessionError{Message: "join requires a session id"}
	}
	if opts.RequestHistory && opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}

	raw, err := protocol.EncodeOptions(&opts)
	if err != nil {
		return nil, fmt.Errorf("encode join options: %w", err)
	}
	env := protocol.Envelope{Type: protocol.MessageTypeJoin, Options: raw}

	res, err := c.request(ctx, env, func(resp *protocol.Envelope) (any, error) {
		sess := sessionFromJoin(resp, opts.SessionID)
		c.attachSession(sess)

		// History must be observed as a logical prefix of the live
		// stream. Delivering it here, inside the resolving dispatch step,
		// guarantees no later frame can overtake it.
		if resp.History != "" {
			c.handleData(sess.ID, resp.History)
		}
		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	sess := res.(*Session)
	out := *sess
	c.log.Info().Str("sessionId", out.ID).Msg("session joined")
	return &out, nil
}

func sessionFromJoin(resp *protocol.Envelope, requested string) *Session {
	sess := &Session{
		ID:          resp.SessionID,
		Type:        SessionTypeLocal,
		Accepting:   true,
		ClientCount: 1,
	}
	if sess.ID == "" {
		sess.ID = requested
	}
	if info := resp.Session; info != nil {
		if info.Type != "" {
			sess.Type = info.Type
		}
		sess.Shell = info.Shell
		sess.Cwd = info.Cwd
		sess.Cols = info.Cols
		sess.Rows = info.Rows
		sess.Owner = info.Owner
		sess.Label = info.Label
		sess.Accepting = info.Accepting
		sess.Container = info.Container
		if info.ClientCount > 0 {
			sess.ClientCount = info.ClientCount
		}
	}
	return sess
}

// Leave detaches from the attached session without terminating it; the
// remote session keeps running and can be rejoined. Fire-and-forget: local
// state is idle as soon as this returns, regardless of the server.
func (c *Client) Leave() error {
	sess, attached := c.Session()
	if !attached {
		return ErrNoSession
	}

	err := c.send(protocol.Envelope{Type: protocol.MessageTypeLeave, SessionID: sess.ID})
	c.detachSession()
	c.log.Info().Str("sessionId", sess.ID).Msg("left session")
	return err
}

// Kill requests termination of the attached session. Local state is idle
// immediately; the exit event the server later emits for this session is
// tolerated and still reaches exit handlers.
func (c *Client) Kill() error {
	sess, attached := c.Session()
	if !attached {
		return ErrNoSession
	}

	err := c.send(protocol.Envelope{Type: protocol.MessageTypeKill})
	c.detachSession()
	c.log.Info().Str("sessionId", sess.ID).Msg("killed session")
	return err
}

// CloseSession asks the server to close a specific session. Closing the
// attached session also detaches locally.
func (c *Client) CloseSession(sessionID string) error {
	if sessionID == "" {
		return &SessionError{Message: "close requires a session id"}
	}
	err := c.send(protocol.Envelope{Type: protocol.MessageTypeClose, SessionID: sessionID})
	if sess, attached := c.Session(); attached && sess.ID == sessionID {
		c.detachSession()
	}
	return err
}

// Write sends input to the attached session's terminal.
func (c *Client) Write(data string) error {
	if _, attached := c.Session(); !attached {
		return ErrNoSession
	}
	if c.rec != nil {
		if err := c.rec.Input(data); err != nil {
			c.log.Warn().Err(err).Msg("cast recording failed")
		}
	}
	return c.send(protocol.Envelope{Type: protocol.MessageTypeData, Data: data})
}

// Resize changes the attached session's terminal dimensions.
func (c *Client) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("resize: dimensions must be positive")
	}
	if _, attached := c.Session(); !attached {
		return ErrNoSession
	}

	if err := c.send(protocol.Envelope{Type: protocol.MessageTypeResize, Cols: cols, Rows: rows}); err != nil {
		return err
	}
	c.mu.Lock()
	if c.sess != nil {
		c.sess.Cols = cols
		c.sess.Rows = rows
	}
	c.mu.Unlock()
	return nil
}

// ListSessions returns server-tracked sessions, optionally narrowed by
// filter. Does not affect local attachment state.
func (c *Client) ListSessions(ctx context.Context, filter *SessionFilter) ([]SharedSessionInfo, error) {
	env := protocol.Envelope{Type: protocol.MessageTypeListSessions, Filter: filter}
	res, err := c.request(ctx, env, func(resp *protocol.Envelope) (any, error) {
		return resp.Sessions, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]SharedSessionInfo), nil
}

// ListContainers returns the Docker containers available for exec
// sessions.
func (c *Client) ListContainers(ctx context.Context) ([]ContainerInfo, error) {
	env := protocol.Envelope{Type: protocol.MessageTypeListContainers}
	res, err := c.request(ctx, env, func(resp *protocol.Envelope) (any, error) {
		if resp.Type != protocol.MessageTypeContainerList {
			return nil, &ProtocolError{Expected: string(protocol.MessageTypeContainerList), Got: string(resp.Type)}
		}
		return resp.Containers, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]ContainerInfo), nil
}
