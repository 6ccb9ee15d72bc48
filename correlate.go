package xshell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xshell-terminal/xshell-go/internal/protocol"
)

// pendingResult is what a waiting caller receives when its request
// resolves.
type pendingResult struct {
	val any
	err error
}

// pendingRequest is one outstanding correlated request. resolve, when set,
// runs on the receive loop before the next frame is read, so it may mutate
// session state and publish events in strict arrival order.
type pendingRequest struct {
	id      string
	done    chan pendingResult // buffered; the loop never blocks on it
	resolve func(*protocol.Envelope) (any, error)
}

// nextRequestID allocates a correlation id unique among outstanding
// requests.
func (c *Client) nextRequestID() string {
	return fmt.Sprintf("req-%d", c.reqSeq.Add(1))
}

// request sends env with a fresh correlation id and suspends until the
// response arrives, the default request timeout elapses, or ctx is done.
// A pending entry is removed exactly once: either here on expiry or by the
// receive loop on a matching response; late responses find no entry and
// are dropped.
func (c *Client) request(ctx context.Context, env protocol.Envelope, resolve func(*protocol.Envelope) (any, error)) (any, error) {
	id := c.nextRequestID()
	env.RequestID = id

	pr := &pendingRequest{
		id:      id,
		done:    make(chan pendingResult, 1),
		resolve: resolve,
	}
	c.pendingMu.Lock()
	c.pending[id] = pr
	c.pendingMu.Unlock()

	if err := c.send(env); err != nil {
		c.removePending(id)
		return nil, err
	}

	start := time.Now()
	timeout := c.cfg.requestTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pr.done:
		return res.val, res.err
	case <-timer.C:
		if c.removePending(id) {
			return nil, &TimeoutError{Op: string(env.Type) + " request", Limit: timeout}
		}
		// The response won the race against the deadline; take it.
		res := <-pr.done
		return res.val, res.err
	case <-ctx.Done():
		if c.removePending(id) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &TimeoutError{Op: string(env.Type) + " request", Limit: time.Since(start)}
			}
			return nil, ctx.Err()
		}
		res := <-pr.done
		return res.val, res.err
	}
}

// removePending deletes id from the outstanding set, reporting whether
// this call was the one that removed it.
func (c *Client) removePending(id string) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

// resolvePending matches one inbound response frame against the
// outstanding set. Unknown or already-resolved ids are dropped without
// touching other pending requests.
func (c *Client) resolvePending(env *protocol.Envelope) {
	c.pendingMu.Lock()
	pr, ok := c.pending[env.RequestID]
	if ok {
		delete(c.pending, env.RequestID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.log.Debug().Str("requestId", env.RequestID).Msg("dropping unmatched response")
		return
	}

	if msg := env.ErrorMessage(); msg != "" {
		pr.done <- pendingResult{err: &SessionError{Message: msg}}
		return
	}

	res := pendingResult{val: env}
	if pr.resolve != nil {
		res.val, res.err = pr.resolve(env)
	}
	pr.done <- res
}

// failPending resolves every outstanding request with err. Used when the
// connection drops: connection-scope failures fan out to all waiters.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.pendingMu.Unlock()

	for _, pr := range pending {
		pr.done <- pendingResult{err: err}
	}
}
