package xshell

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xshell-terminal/xshell-go/internal/recorder"
	"github.com/xshell-terminal/xshell-go/internal/scrollback"
)

const (
	defaultRequestTimeout    = 30 * time.Second
	defaultReconnectAttempts = 10
	defaultReconnectDelay    = time.Second
	defaultHistoryLimit      = 50000
)

type config struct {
	dialer            *websocket.Dialer
	requestTimeout    time.Duration
	reconnect         bool
	reconnectAttempts int
	reconnectDelay    time.Duration
	log               zerolog.Logger
	scrollbackLimit   int
	recording         io.Writer
	recordingPath     string
}

func defaultConfig() config {
	return config{
		dialer:            websocket.DefaultDialer,
		requestTimeout:    defaultRequestTimeout,
		reconnectAttempts: defaultReconnectAttempts,
		reconnectDelay:    defaultReconnectDelay,
		log:               zerolog.Nop(),
	}
}

// Option configures a Client.
type Option func(*config)

// WithDialer replaces the WebSocket dialer used to reach the server.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *config) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithRequestTimeout sets the default deadline for correlated requests.
// Individual calls can still shorten it through their context.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithReconnect enables automatic reconnection after an unexpected
// transport closure: up to attempts redials with a linearly increasing
// delay starting at delay. Reconnection never re-attaches a session; the
// caller must spawn or join again.
func WithReconnect(attempts int, delay time.Duration) Option {
	return func(c *config) {
		c.reconnect = true
		if attempts > 0 {
			c.reconnectAttempts = attempts
		}
		if delay > 0 {
			c.reconnectDelay = delay
		}
	}
}

// WithLogger attaches a structured logger. The client logs reconnect
// attempts, dropped frames, and swallowed handler panics; it never logs
// terminal payloads.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithScrollback keeps the most recent limit bytes of session output
// available through Client.Scrollback.
func WithScrollback(limit int) Option {
	return func(c *config) { c.scrollbackLimit = limit }
}

// WithRecording streams session I/O to w as an Asciinema v2 cast. The
// recording starts when a session is attached.
func WithRecording(w io.Writer) Option {
	return func(c *config) { c.recording = w }
}

// WithRecordingFile writes the Asciinema cast to a file created at path.
// The file is closed by Disconnect.
func WithRecordingFile(path string) Option {
	return func(c *config) { c.recordingPath = path }
}

func (c *config) newScrollback() *scrollback.Buffer {
	if c.scrollbackLimit <= 0 {
		return nil
	}
	return scrollback.New(c.scrollbackLimit)
}

func (c *config) newRecorder() (*recorder.Recorder, error) {
	if c.recordingPath != "" {
		return recorder.Create(c.recordingPath)
	}
	if c.recording == nil {
		return nil, nil
	}
	return recorder.NewWriter(c.recording), nil
}
