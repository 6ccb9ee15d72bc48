package scrollback

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBufferAppendWithinLimit(t *testing.T) {
	b := New(16)
	b.Append([]byte("hello "))
	b.Append([]byte("world"))

	if got := string(b.Bytes()); got != "hello world" {
		t.Errorf("expected 'hello world', got %q", got)
	}
	if b.Len() != 11 {
		t.Errorf("expected length 11, got %d", b.Len())
	}
}

func TestBufferTrimsOldestFirst(t *testing.T) {
	b := New(8)
	b.Append([]byte("12345678"))
	b.Append([]byte("abcd"))

	if got := string(b.Bytes()); got != "5678abcd" {
		t.Errorf("expected '5678abcd', got %q", got)
	}
}

func TestBufferOversizedChunkKeepsTail(t *testing.T) {
	b := New(4)
	b.Append([]byte("abcdefgh"))

	if got := string(b.Bytes()); got != "efgh" {
		t.Errorf("expected 'efgh', got %q", got)
	}
}

func TestBufferReset(t *testing.T) {
	b := New(8)
	b.Append([]byte("data"))
	b.Reset()

	if b.Len() != 0 {
		t.Errorf("expected empty buffer after reset, got %d bytes", b.Len())
	}
	if b.Bytes() != nil {
		t.Error("expected nil from empty buffer")
	}
}

func TestBufferNonPositiveLimit(t *testing.T) {
	b := New(0)
	if b.Limit() != 1 {
		t.Errorf("expected limit 1, got %d", b.Limit())
	}
	b.Append([]byte("xy"))
	if got := string(b.Bytes()); got != "y" {
		t.Errorf("expected 'y', got %q", got)
	}
}

// The buffer must always hold exactly the suffix of everything written,
// for any sequence of chunks.
func TestBufferSuffixProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("cached output is the suffix of all appended data", prop.ForAll(
		func(chunks [][]byte, limit int) bool {
			if limit <= 0 {
				limit = 1
			}
			b := New(limit)

			var total []byte
			for _, chunk := range chunks {
				b.Append(chunk)
				total = append(total, chunk...)
			}

			got := b.Bytes()
			if len(got) > limit {
				return false
			}
			want := total
			if len(total) > limit {
				want = total[len(total)-limit:]
			}
			if len(want) == 0 {
				return len(got) == 0
			}
			return bytes.Equal(got, want)
		},
		gen.SliceOfN(10, gen.SliceOf(gen.UInt8())),
		gen.IntRange(1, 4096),
	))

	properties.TestingRun(t)
}
