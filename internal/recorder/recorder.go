// Package recorder captures terminal session output as an Asciinema v2
// cast (JSON Lines: one header object followed by [offset, type, data]
// event arrays). Recordings produced here replay with any asciinema player.
package recorder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Header is the first line of an Asciinema v2 cast.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Event is a single cast event, serialized as [offset, kind, data].
type Event struct {
	Offset float64
	Kind   string // "o" for output, "i" for input
	Data   string
}

// MarshalJSON encodes the event as the three-element array the format
// requires.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Offset, e.Kind, e.Data})
}

// UnmarshalJSON decodes a three-element cast event array.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("cast event: expected 3 elements, got %d", len(arr))
	}
	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("cast event: offset is not a number")
	}
	kind, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("cast event: kind is not a string")
	}
	payload, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("cast event: data is not a string")
	}
	e.Offset = offset
	e.Kind = kind
	e.Data = payload
	return nil
}

// Recorder streams a session to a cast file. The header is written on
// Start; output and input events are appended with offsets relative to the
// start time. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	w       io.Writer
	file    *os.File // set only when the recorder owns the file
	start   time.Time
	started bool
}

// Create opens path for writing and returns a recorder owning the file.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cast file: %w", err)
	}
	return &Recorder{w: f, file: f, start: time.Now()}, nil
}

// NewWriter returns a recorder writing to w. The caller keeps ownership
// of w.
func NewWriter(w io.Writer) *Recorder {
	return &Recorder{w: w, start: time.Now()}
}

// Start writes the cast header. It must be called once, before any event;
// cols and rows are the terminal dimensions of the recorded session.
func (r *Recorder) Start(cols, rows int, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("recorder already started")
	}
	r.started = true

	return r.writeLine(Header{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: r.start.Unix(),
		Title:     title,
	})
}

// Output records terminal output bytes.
func (r *Recorder) Output(data string) error {
	return r.event("o", data)
}

// Input records input sent to the terminal.
func (r *Recorder) Input(data string) error {
	return r.event("i", data)
}

func (r *Recorder) event(kind, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return fmt.Errorf("recorder not started")
	}
	return r.writeLine(Event{
		Offset: time.Since(r.start).Seconds(),
		Kind:   kind,
		Data:   data,
	})
}

func (r *Recorder) writeLine(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cast line: %w", err)
	}
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write cast line: %w", err)
	}
	return nil
}

// Close releases the underlying file if the recorder owns one.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
