package xshell

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/xshell-terminal/xshell-go/internal/protocol"
)

// attachedReader returns a client with a synthetic session attached, for
// driving the stream reader directly without a server.
func attachedReader() *Client {
	c := New("ws://unused")
	c.attachSession(&Session{ID: "s-1", Shell: "bash", Cols: 80, Rows: 24})
	return c
}

func TestReadWhileIdle(t *testing.T) {
	c := New("ws://unused")
	if _, err := c.Read(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrNoSession) {
		t.Errorf("Read while idle = %v, want ErrNoSession", err)
	}
}

func TestReadEmptyOnTimeout(t *testing.T) {
	c := attachedReader()

	start := time.Now()
	out, err := c.Read(context.Background(), 50*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out != "" {
		t.Errorf("out = %q, want empty on budget exhaustion", out)
	}
	if elapsed < 40*time.Millisecond || elapsed > time.Second {
		t.Errorf("Read returned after %v, want ~50ms", elapsed)
	}
}

func TestReadDeliversQueuedData(t *testing.T) {
	c := attachedReader()
	c.handleData("s-1", "hello")

	out, err := c.Read(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out != "hello" {
		t.Errorf("out = %q, want %q", out, "hello")
	}
}

func TestReadIgnoresOtherSessions(t *testing.T) {
	c := attachedReader()
	c.handleData("someone-else", "noise")

	out, err := c.Read(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out != "" {
		t.Errorf("out = %q, want other sessions filtered out", out)
	}
}

func TestReadSurfacesExit(t *testing.T) {
	c := attachedReader()
	c.handleData("s-1", "bye")
	c.handleExit("s-1", 3)

	// Data queued before the exit still drains first.
	out, err := c.Read(context.Background(), time.Second)
	if err != nil || out != "bye" {
		t.Fatalf("Read = %q, %v, want bye", out, err)
	}

	// The exit is deliverable even though the session already detached.
	_, err = c.Read(context.Background(), time.Second)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v (%T), want *ExitError", err, err)
	}
	if exitErr.Code != 3 {
		t.Errorf("exit code = %d, want 3", exitErr.Code)
	}

	// Drained and detached: back to the idle error.
	if _, err := c.Read(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrNoSession) {
		t.Errorf("Read after drain = %v, want ErrNoSession", err)
	}
}

func TestReadSurfacesServerError(t *testing.T) {
	c := attachedReader()
	c.handleServerError("s-1", "pty write failed")

	_, err := c.Read(context.Background(), time.Second)
	var sessErr *SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("error = %v (%T), want *SessionError", err, err)
	}
}

func TestReadUntilSpansChunks(t *testing.T) {
	c := attachedReader()
	c.handleData("s-1", "he")
	c.handleData("s-1", "llo $ tail")

	out, err := c.ReadUntil(context.Background(), "$ ", time.Second, true)
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if out != "hello $ " {
		t.Errorf("out = %q, want %q", out, "hello $ ")
	}
}

func TestReadUntilExcludePattern(t *testing.T) {
	c := attachedReader()
	c.handleData("s-1", "result\n$ ")

	out, err := c.ReadUntil(context.Background(), "$ ", time.Second, false)
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if out != "result\n" {
		t.Errorf("out = %q, want %q", out, "result\n")
	}
}

func TestReadUntilFirstOccurrence(t *testing.T) {
	c := attachedReader()
	c.handleData("s-1", "a>b>c")

	out, err := c.ReadUntil(context.Background(), ">", time.Second, true)
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if out != "a>" {
		t.Errorf("out = %q, want cut at the first occurrence", out)
	}
}

func TestReadUntilTimeout(t *testing.T) {
	c := attachedReader()
	c.handleData("s-1", "never matches")

	start := time.Now()
	_, err := c.ReadUntil(context.Background(), "$ ", 100*time.Millisecond, true)
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v (%T), want *TimeoutError", err, err)
	}
	if elapsed < 80*time.Millisecond || elapsed > time.Second {
		t.Errorf("ReadUntil failed after %v, want ~100ms", elapsed)
	}
}

func TestReadUntilExitPropagates(t *testing.T) {
	c := attachedReader()
	c.handleData("s-1", "partial")
	c.handleExit("s-1", 0)

	_, err := c.ReadUntil(context.Background(), "$ ", time.Second, true)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v (%T), want *ExitError", err, err)
	}
}

func TestReadAllStopsOnIdle(t *testing.T) {
	c := attachedReader()
	c.handleData("s-1", "one ")
	c.handleData("s-1", "two ")
	c.handleData("s-1", "three")

	out, err := c.ReadAll(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if out != "one two three" {
		t.Errorf("out = %q, want %q", out, "one two three")
	}
}

func TestReadAllReturnsCollectedOnExit(t *testing.T) {
	c := attachedReader()
	c.handleData("s-1", "tail")
	c.handleExit("s-1", 1)

	out, err := c.ReadAll(context.Background(), 100*time.Millisecond)
	if out != "tail" {
		t.Errorf("out = %q, want collected output preserved", out)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Errorf("error = %v (%T), want *ExitError", err, err)
	}
}

func TestExecuteStripsEchoAndPrompt(t *testing.T) {
	c, srv := connectedClient(t)

	srv.Respond(protocol.MessageTypeData, func(env *protocol.Envelope) []*protocol.Envelope {
		return []*protocol.Envelope{{
			Type: protocol.MessageTypeData,
			Data: "echo hi\r\nhi\r\n$ ",
		}}
	})

	if _, err := c.Spawn(testContext(t), SpawnOptions{}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	out, err := c.Execute(testContext(t), "echo hi", 5*time.Second, "$ ")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hi" {
		t.Errorf("out = %q, want %q", out, "hi")
	}
}

func TestWriteThenReadUntilPrompt(t *testing.T) {
	c, srv := connectedClient(t)

	srv.Respond(protocol.MessageTypeData, func(env *protocol.Envelope) []*protocol.Envelope {
		return []*protocol.Envelope{{
			Type: protocol.MessageTypeData,
			Data: env.Data + "hi\n$",
		}}
	})

	if _, err := c.Spawn(testContext(t), SpawnOptions{Shell: "/bin/sh"}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := c.Write("echo hi\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, err := c.ReadUntil(testContext(t), "$", 5*time.Second, true)
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if !strings.HasSuffix(out, "$") {
		t.Errorf("out = %q, want it to end at the prompt", out)
	}
	if !strings.Contains(out, "hi") {
		t.Errorf("out = %q, want the command output included", out)
	}
}

func TestReadUntilChunkingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// However the stream is split into frames, ReadUntil returns the text
	// up to and including the first occurrence of the pattern.
	properties.Property("result independent of chunk boundaries", prop.ForAll(
		func(prefix string, splits []int) bool {
			const pattern = "$ "
			if strings.Contains(prefix, pattern) {
				return true
			}
			stream := prefix + pattern + "trailing output"

			c := attachedReader()
			rest := stream
			for _, s := range splits {
				if len(rest) == 0 {
					break
				}
				cut := s % len(rest)
				if cut <= 0 {
					cut = 1
				}
				c.handleData("s-1", rest[:cut])
				rest = rest[cut:]
			}
			if len(rest) > 0 {
				c.handleData("s-1", rest)
			}

			out, err := c.ReadUntil(context.Background(), pattern, time.Second, true)
			if err != nil {
				return false
			}
			return out == prefix+pattern
		},
		gen.AlphaString(),
		gen.SliceOf(gen.IntRange(1, 8)),
	))

	properties.TestingRun(t)
}
