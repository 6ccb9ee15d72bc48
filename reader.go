package xshell

import (
	"context"
	"strings"
	"sync"
	"time"
)

type streamEventKind int

const (
	eventData streamEventKind = iota
	eventExit
	eventError
)

// streamEvent is one data/exit/error occurrence relevant to the tracked
// session, queued for bounded reads.
type streamEvent struct {
	kind   streamEventKind
	data   string
	code   int
	errMsg string
}

// streamReader buffers session stream events between the receive loop and
// blocked readers. The queue is unbounded so the receive loop never stalls
// on a slow reader; reset clears events left over from a previous session.
type streamReader struct {
	mu     sync.Mutex
	queue  []streamEvent
	signal chan struct{}
}

func newStreamReader() *streamReader {
	return &streamReader{signal: make(chan struct{}, 1)}
}

func (r *streamReader) push(ev streamEvent) {
	r.mu.Lock()
	r.queue = append(r.queue, ev)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *streamReader) pop() (streamEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return streamEvent{}, false
	}
	ev := r.queue[0]
	r.queue = r.queue[1:]
	return ev, true
}

func (r *streamReader) reset() {
	r.mu.Lock()
	r.queue = nil
	r.mu.Unlock()
}

// wait blocks until an event is available, the budget elapses, or ctx is
// done. ok is false on budget exhaustion; err is non-nil only for ctx
// cancellation.
func (r *streamReader) wait(ctx context.Context, budget time.Duration) (ev streamEvent, ok bool, err error) {
	timer := time.NewTimer(budget)
	defer timer.Stop()

	for {
		if ev, ok := r.pop(); ok {
			return ev, true, nil
		}
		select {
		case <-r.signal:
		case <-timer.C:
			return streamEvent{}, false, nil
		case <-ctx.Done():
			return streamEvent{}, false, ctx.Err()
		}
	}
}

// Read performs one bounded single read: it waits up to timeout for the
// next data, exit, or error event on the tracked session. Data returns its
// payload; exit fails with ExitError; a server error fails with
// SessionError; budget exhaustion returns an empty string with no error,
// which is how callers distinguish "nothing yet" from "stream ended".
func (c *Client) Read(ctx context.Context, timeout time.Duration) (string, error) {
	// An already-queued exit or error must still be deliverable after the
	// session detached; only a fully idle, empty stream is an error.
	if _, attached := c.Session(); !attached {
		if _, queued := c.peek(); !queued {
			return "", ErrNoSession
		}
	}

	ev, ok, err := c.reader.wait(ctx, timeout)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	switch ev.kind {
	case eventExit:
		return "", &ExitError{Code: ev.code}
	case eventError:
		return "", &SessionError{Message: ev.errMsg}
	default:
		return ev.data, nil
	}
}

func (c *Client) peek() (streamEvent, bool) {
	c.reader.mu.Lock()
	defer c.reader.mu.Unlock()
	if len(c.reader.queue) == 0 {
		return streamEvent{}, false
	}
	return c.reader.queue[0], true
}

// ReadUntil accumulates reads until the buffer contains pattern as a
// substring, then returns the prefix up to its first occurrence —
// including the pattern itself when includePattern is true. The remaining
// budget is recomputed before every wait; reaching the deadline without a
// match fails with a TimeoutError.
func (c *Client) ReadUntil(ctx context.Context, pattern string, timeout time.Duration, includePattern bool) (string, error) {
	deadline := time.Now().Add(timeout)
	var buf strings.Builder

	for {
		if idx := strings.Index(buf.String(), pattern); idx >= 0 {
			if includePattern {
				return buf.String()[:idx+len(pattern)], nil
			}
			return buf.String()[:idx], nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", &TimeoutError{Op: "read until " + quotePattern(pattern), Limit: timeout}
		}

		chunk, err := c.Read(ctx, remaining)
		if err != nil {
			return "", err
		}
		buf.WriteString(chunk)
	}
}

// ReadAll accumulates reads until a read yields nothing within idle — an
// inactivity terminator, not a whole-call deadline. Already-collected
// output is returned even when a later read fails.
func (c *Client) ReadAll(ctx context.Context, idle time.Duration) (string, error) {
	var buf strings.Builder
	for {
		chunk, err := c.Read(ctx, idle)
		if err != nil {
			return buf.String(), err
		}
		if chunk == "" {
			return buf.String(), nil
		}
		buf.WriteString(chunk)
	}
}

// Execute writes command followed by a newline, reads until promptPattern
// reappears, then strips the echoed command line and the trailing prompt
// from the captured output.
func (c *Client) Execute(ctx context.Context, command string, timeout time.Duration, promptPattern string) (string, error) {
	if promptPattern == "" {
		promptPattern = "$ "
	}

	if err := c.Write(command + "\n"); err != nil {
		return "", err
	}

	out, err := c.ReadUntil(ctx, promptPattern, timeout, true)
	if err != nil {
		return "", err
	}

	lines := strings.Split(out, "\n")
	if len(lines) > 0 && strings.Contains(lines[0], command) {
		lines = lines[1:]
	}
	result := strings.Join(lines, "\n")
	result = strings.TrimSuffix(result, promptPattern)
	return strings.TrimSpace(result), nil
}

// quotePattern shortens a pattern for error messages.
func quotePattern(pattern string) string {
	const max = 32
	if len(pattern) > max {
		return "\"" + pattern[:max] + "…\""
	}
	return "\"" + pattern + "\""
}
