package xshell

import (
	"context"
	"time"
)

// BlockingClient is a synchronous facade over Client for callers that do
// not want to thread contexts through simple scripts. Both surfaces drive
// the same engine and state machine; the facade adds nothing but
// context.Background plumbing.
type BlockingClient struct {
	c *Client
}

// NewBlocking creates a blocking client for the server at url.
func NewBlocking(url string, opts ...Option) *BlockingClient {
	return &BlockingClient{c: New(url, opts...)}
}

// Async exposes the underlying asynchronous engine, for registering event
// handlers or mixing call styles.
func (b *BlockingClient) Async() *Client { return b.c }

// Connect dials the server and waits for its serverInfo frame.
func (b *BlockingClient) Connect() (*ServerInfo, error) {
	return b.c.Connect(context.Background())
}

// Spawn creates a terminal session and waits for the server's response.
func (b *BlockingClient) Spawn(opts SpawnOptions) (*Session, error) {
	return b.c.Spawn(context.Background(), opts)
}

// Join attaches to an existing shared session.
func (b *BlockingClient) Join(opts JoinOptions) (*Session, error) {
	return b.c.Join(context.Background(), opts)
}

// Write sends input to the attached session.
func (b *BlockingClient) Write(data string) error { return b.c.Write(data) }

// Read waits up to timeout for the next chunk of output.
func (b *BlockingClient) Read(timeout time.Duration) (string, error) {
	return b.c.Read(context.Background(), timeout)
}

// ReadUntil reads output until pattern appears, including the pattern in
// the result.
func (b *BlockingClient) ReadUntil(pattern string, timeout time.Duration) (string, error) {
	return b.c.ReadUntil(context.Background(), pattern, timeout, true)
}

// ReadAll reads until output stays quiet for idle.
func (b *BlockingClient) ReadAll(idle time.Duration) (string, error) {
	return b.c.ReadAll(context.Background(), idle)
}

// Execute runs a command and returns its output with the echo and prompt
// stripped.
func (b *BlockingClient) Execute(command string, timeout time.Duration, promptPattern string) (string, error) {
	return b.c.Execute(context.Background(), command, timeout, promptPattern)
}

// Resize changes the attached session's terminal dimensions.
func (b *BlockingClient) Resize(cols, rows int) error { return b.c.Resize(cols, rows) }

// Leave detaches without terminating the remote session.
func (b *BlockingClient) Leave() error { return b.c.Leave() }

// Kill requests termination of the attached session.
func (b *BlockingClient) Kill() error { return b.c.Kill() }

// CloseSession asks the server to close a specific session.
func (b *BlockingClient) CloseSession(sessionID string) error { return b.c.CloseSession(sessionID) }

// ListSessions returns server-tracked sessions matching filter.
func (b *BlockingClient) ListSessions(filter *SessionFilter) ([]SharedSessionInfo, error) {
	return b.c.ListSessions(context.Background(), filter)
}

// ListContainers returns the containers available for exec sessions.
func (b *BlockingClient) ListContainers() ([]ContainerInfo, error) {
	return b.c.ListContainers(context.Background())
}

// Session returns the attached session's local view, if any.
func (b *BlockingClient) Session() (Session, bool) { return b.c.Session() }

// Close disconnects from the server.
func (b *BlockingClient) Close() error { return b.c.Disconnect() }
