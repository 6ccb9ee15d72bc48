// Package xshell implements a client for terminal servers speaking the
// x-shell JSON-over-WebSocket protocol.
//
// A Client multiplexes every session operation over a single socket. One
// receive goroutine owns the connection: responses are correlated back to
// their requests by id, and unsolicited frames (terminal output, exits,
// server errors, presence changes) are published to event handlers in
// arrival order.
//
// Basic use:
//
//	c := xshell.New("ws://localhost:8080/ws")
//	if _, err := c.Connect(ctx); err != nil {
//		return err
//	}
//	defer c.Disconnect()
//
//	sess, err := c.Spawn(ctx, xshell.SpawnOptions{Shell: "bash"})
//	if err != nil {
//		return err
//	}
//	out, err := c.Execute(ctx, "uname -a", 5*time.Second, "$ ")
//
// Callers that prefer not to pass contexts can use BlockingClient, a thin
// synchronous facade over the same engine.
//
// Output for the attached session is buffered internally; Read, ReadUntil,
// ReadAll and Execute consume it without ever blocking the receive loop.
package xshell
