package xshell

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when an operation requires a live
	// connection and there is none.
	ErrNotConnected = errors.New("not connected to server")

	// ErrClientClosed is returned when the client has been disconnected
	// and cannot be reused.
	ErrClientClosed = errors.New("client is closed")

	// ErrNoSession is returned when an operation requires an attached
	// session and the client is idle.
	ErrNoSession = errors.New("no attached session")

	// ErrSessionAttached is returned when spawn or join is attempted while
	// a session is already attached.
	ErrSessionAttached = errors.New("a session is already attached")
)

// ConnectionError reports a transport-level failure: a refused dial, an
// unexpected close, or an exhausted reconnect budget.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection %s failed", e.Op)
	}
	return fmt.Sprintf("connection %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports an unexpected message where a specific reply type
// was required. It is fatal to the operation in flight, not to the
// connection.
type ProtocolError struct {
	Expected string
	Got      string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: expected %s, got %s", e.Expected, e.Got)
}

// TimeoutError reports that a correlated request's deadline elapsed with no
// matching reply, or that a pattern wait exhausted its budget. It fails
// only the operation that hit it.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Limit)
}

// Timeout reports true so the error satisfies net-style timeout checks.
func (e *TimeoutError) Timeout() bool { return true }

// SessionError reports a session-level rejection from the server, carrying
// the server-supplied message.
type SessionError struct {
	Message string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session error: %s", e.Message)
}

// ExitError reports that the tracked session ended. It is not a fault: it
// carries the exit code and is raised to any blocked read after exit
// handlers have been notified.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("session exited with code %d", e.Code)
}
