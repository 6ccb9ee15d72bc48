// Package scrollback caches the most recent terminal output received by a
// client, so host applications can inspect recent history without having
// subscribed a data handler from the start.
package scrollback

import "sync"

// Buffer retains up to a fixed number of bytes of terminal output,
// discarding the oldest bytes first. Safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	data  []byte
	limit int
}

// New creates a Buffer holding at most limit bytes. A non-positive limit
// defaults to 1.
func New(limit int) *Buffer {
	if limit <= 0 {
		limit = 1
	}
	return &Buffer{limit: limit}
}

// Append adds chunk to the buffer, trimming from the front so that at most
// the limit's worth of the most recent bytes remain.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(chunk) >= b.limit {
		b.data = append(b.data[:0], chunk[len(chunk)-b.limit:]...)
		return
	}
	b.data = append(b.data, chunk...)
	if overflow := len(b.data) - b.limit; overflow > 0 {
		b.data = append(b.data[:0], b.data[overflow:]...)
	}
}

// Bytes returns a copy of the cached output, oldest first.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.data) == 0 {
		return nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Reset discards all cached output.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.mu.Unlock()
}

// Len returns the number of cached bytes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Limit returns the maximum number of bytes the buffer retains.
func (b *Buffer) Limit() int {
	return b.limit
}
