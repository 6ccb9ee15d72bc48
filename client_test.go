package xshell

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xshell-terminal/xshell-go/internal/protocol"
	"github.com/xshell-terminal/xshell-go/internal/wstest"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// connectedClient dials a fresh test server and returns both, torn down
// with the test.
func connectedClient(t *testing.T, opts ...Option) (*Client, *wstest.Server) {
	t.Helper()
	srv := wstest.NewServer()
	t.Cleanup(srv.Close)

	c := New(srv.URL(), opts...)
	t.Cleanup(func() { c.Disconnect() })

	if _, err := c.Connect(testContext(t)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c, srv
}

func TestConnectHandshake(t *testing.T) {
	c, _ := connectedClient(t)

	if got := c.State(); got != StateConnected {
		t.Errorf("state = %v, want %v", got, StateConnected)
	}

	info := c.ServerInfo()
	if info == nil {
		t.Fatal("ServerInfo() = nil after connect")
	}
	if info.DefaultShell != "bash" {
		t.Errorf("DefaultShell = %q, want %q", info.DefaultShell, "bash")
	}
	if _, attached := c.Session(); attached {
		t.Error("client attached to a session right after connect")
	}
}

func TestConnectWhileConnected(t *testing.T) {
	c, _ := connectedClient(t)

	info, err := c.Connect(testContext(t))
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if info == nil {
		t.Fatal("second Connect returned nil info")
	}
}

func TestConnectAfterDisconnect(t *testing.T) {
	c, _ := connectedClient(t)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := c.Connect(testContext(t)); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Connect after Disconnect = %v, want ErrClientClosed", err)
	}
}

func TestConnectRefused(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws")
	_, err := c.Connect(testContext(t))
	if err == nil {
		t.Fatal("Connect to dead endpoint succeeded")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("error = %T, want *ConnectionError", err)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state after failed connect = %v, want %v", got, StateDisconnected)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	c, _ := connectedClient(t)
	for i := 0; i < 3; i++ {
		if err := c.Disconnect(); err != nil {
			t.Fatalf("Disconnect #%d: %v", i+1, err)
		}
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("state = %v, want %v", got, StateClosed)
	}
}

func TestRequestDeadline(t *testing.T) {
	c, srv := connectedClient(t)
	srv.Silence(protocol.MessageTypeListSessions)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.ListSessions(ctx, nil)
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v (%T), want *TimeoutError", err, err)
	}
	if !timeoutErr.Timeout() {
		t.Error("Timeout() = false")
	}
	if elapsed < 80*time.Millisecond || elapsed > time.Second {
		t.Errorf("request failed after %v, want ~100ms", elapsed)
	}

	// The dropped request must not poison later ones: once the server
	// answers again, the next request correlates normally.
	srv.Respond(protocol.MessageTypeListSessions, func(env *protocol.Envelope) []*protocol.Envelope {
		return []*protocol.Envelope{{
			Type:     protocol.MessageTypeSessionList,
			Sessions: []protocol.SharedSessionInfo{{SessionID: "s1", Shell: "bash"}},
		}}
	})
	sessions, err := c.ListSessions(testContext(t), nil)
	if err != nil {
		t.Fatalf("ListSessions after deadline: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s1" {
		t.Errorf("sessions = %+v, want one entry s1", sessions)
	}
}

func TestUnmatchedResponseDropped(t *testing.T) {
	c, srv := connectedClient(t)

	// A response nobody asked for is dropped without disturbing the
	// request that follows it.
	if err := srv.Push(&protocol.Envelope{
		Type:      protocol.MessageTypeSessionList,
		RequestID: "req-9999",
	}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	sessions, err := c.ListSessions(testContext(t), nil)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("sessions = %v, want empty", sessions)
	}
}

func TestHandlerPanicIsolation(t *testing.T) {
	c, srv := connectedClient(t)

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 1)

	c.OnData(func(DataEvent) { panic("first handler") })
	c.OnData(func(ev DataEvent) {
		mu.Lock()
		seen = append(seen, ev.Data)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})

	sess, err := c.Spawn(testContext(t), SpawnOptions{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := srv.PushData(sess.ID, "survive"); err != nil {
		t.Fatalf("PushData: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second data handler never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "survive" {
		t.Errorf("second handler saw %v, want [survive]", seen)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	c, srv := connectedClient(t, WithReconnect(5, 10*time.Millisecond))

	var mu sync.Mutex
	disconnects, connects := 0, 0
	c.OnDisconnect(func() { mu.Lock(); disconnects++; mu.Unlock() })
	c.OnConnect(func() { mu.Lock(); connects++; mu.Unlock() })

	if _, err := c.Spawn(testContext(t), SpawnOptions{}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	srv.DropConnection()
	if !srv.WaitConnection(5 * time.Second) {
		t.Fatal("server never saw a redial")
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.State() != StateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v after reconnect", c.State(), StateConnected)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Reconnection restores transport only; the session does not follow.
	if _, attached := c.Session(); attached {
		t.Error("session still attached after reconnect")
	}

	mu.Lock()
	defer mu.Unlock()
	if disconnects == 0 {
		t.Error("disconnect handler never fired")
	}
	if connects == 0 {
		t.Error("connect handler never fired for the redial")
	}
	if srv.Connections() < 2 {
		t.Errorf("server accepted %d connections, want at least 2", srv.Connections())
	}
}

func TestNoReconnectByDefault(t *testing.T) {
	c, srv := connectedClient(t)

	errCh := make(chan error, 1)
	c.OnError(func(ev ErrorEvent) {
		select {
		case errCh <- ev.Err:
		default:
		}
	})

	srv.DropConnection()

	select {
	case err := <-errCh:
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			t.Errorf("error event = %T, want *ConnectionError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error event after transport drop")
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.State() != StateDisconnected {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", c.State(), StateDisconnected)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Connections() != 1 {
		t.Errorf("server accepted %d connections, want 1", srv.Connections())
	}
}

func TestDropFailsOutstandingRequests(t *testing.T) {
	c, srv := connectedClient(t)
	srv.Silence(protocol.MessageTypeListSessions)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.ListSessions(testContext(t), nil)
		errCh <- err
	}()

	// Give the request time to reach the wire before the cut.
	deadline := time.Now().Add(5 * time.Second)
	for len(srv.ReceivedOfType(protocol.MessageTypeListSessions)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("listSessions never reached the server")
		}
		time.Sleep(5 * time.Millisecond)
	}
	srv.DropConnection()

	select {
	case err := <-errCh:
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			t.Errorf("error = %v (%T), want *ConnectionError", err, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("outstanding request never failed after drop")
	}
}

func TestScrollbackCapturesOutput(t *testing.T) {
	c, srv := connectedClient(t, WithScrollback(16))

	sess, err := c.Spawn(testContext(t), SpawnOptions{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := srv.PushData(sess.ID, "0123456789"); err != nil {
		t.Fatalf("PushData: %v", err)
	}
	if err := srv.PushData(sess.ID, "abcdefghij"); err != nil {
		t.Fatalf("PushData: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for string(c.Scrollback()) != "456789abcdefghij" {
		if time.Now().After(deadline) {
			t.Fatalf("scrollback = %q, want %q", c.Scrollback(), "456789abcdefghij")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
