// Package scrollback provides a bounded, line-oriented output store.
//
// A Buffer is written by exactly one producer (a PTY reader or a child
// process pipe) and read by any number of consumers through copying
// snapshots. Storage is bounded: once the retention limit is reached the
// oldest complete line is discarded for every new one. A line that grows
// past MaxLineBytes without a newline is broken there, so output with no
// line endings stays bounded too.
//
// Input bytes are decoded permissively. Invalid UTF-8 becomes U+FFFD and a
// multi-byte rune split across two writes is reassembled before decoding.
package scrollback

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultRetention is the number of complete lines kept when no limit is given.
const DefaultRetention = 1000

// MaxLineBytes is the longest line kept before a break is forced.
const MaxLineBytes = 8 << 10

const replacement = "�"

// Buffer is a thread-safe ring of text lines
type Buffer struct {
	mu       sync.RWMutex
	lines    []string
	head     int
	count    int
	total    uint64
	partial  strings.Builder
	pending  []byte // incomplete trailing rune from the previous write
	capacity int
}

// New creates a buffer retaining at most retention complete lines.
// A non-positive retention falls back to DefaultRetention.
func New(retention int) *Buffer {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Buffer{
		lines:    make([]string, retention),
		capacity: retention,
	}
}

// Write appends raw output. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data := p
	if len(b.pending) > 0 {
		data = append(b.pending, p...)
		b.pending = nil
	}

	if cut := incompleteTail(data); cut < len(data) {
		b.pending = append([]byte(nil), data[cut:]...)
		data = data[:cut]
	}

	b.appendText(bytes.ToValidUTF8(data, []byte(replacement)))
	return len(p), nil
}

// WriteString appends s as if it had been written as bytes.
func (b *Buffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// Flush decodes any held-back partial rune as U+FFFD. Producers call it
// once their stream has ended.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) > 0 {
		b.pending = nil
		b.appendText([]byte(replacement))
	}
}

// appendText splits decoded text into lines (must hold lock)
func (b *Buffer) appendText(text []byte) {
	for len(text) > 0 {
		i := bytes.IndexByte(text, '\n')
		chunk := text
		if i >= 0 {
			chunk = text[:i]
		}
		if room := MaxLineBytes - b.partial.Len(); len(chunk) > room {
			cut := runeBoundary(chunk, room)
			b.partial.Write(chunk[:cut])
			b.push(b.partial.String())
			b.partial.Reset()
			text = text[cut:]
			continue
		}
		b.partial.Write(chunk)
		if i < 0 {
			return
		}
		line := strings.TrimSuffix(b.partial.String(), "\r")
		b.partial.Reset()
		b.push(line)
		text = text[i+1:]
	}
}

// push stores a complete line, evicting the oldest when full (must hold lock)
func (b *Buffer) push(line string) {
	if b.count < b.capacity {
		b.lines[(b.head+b.count)%b.capacity] = line
		b.count++
	} else {
		b.lines[b.head] = line
		b.head = (b.head + 1) % b.capacity
	}
	b.total++
}

// Snapshot returns a copy of the most recent maxLines lines, oldest first.
// The in-progress line, if any, is the last element. A non-positive
// maxLines returns everything retained.
func (b *Buffer) Snapshot(maxLines int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	partial := b.partial.String()
	available := b.count
	if partial != "" {
		available++
	}
	if maxLines <= 0 || maxLines > available {
		maxLines = available
	}

	out := make([]string, 0, maxLines)
	fromLines := maxLines
	if partial != "" {
		fromLines--
	}
	for i := b.count - fromLines; i < b.count; i++ {
		out = append(out, b.lines[(b.head+i)%b.capacity])
	}
	if partial != "" {
		out = append(out, partial)
	}
	return out
}

// LinesSince returns the complete lines whose sequence number is at least
// seq and are still retained, the sequence number to pass on the next call,
// and the current in-progress line. Sequence numbers count every complete
// line ever written, starting at zero.
func (b *Buffer) LinesSince(seq uint64) (lines []string, next uint64, partial string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	oldest := b.total - uint64(b.count)
	if seq < oldest {
		seq = oldest
	}
	if seq < b.total {
		start := int(seq - oldest)
		lines = make([]string, 0, b.count-start)
		for i := start; i < b.count; i++ {
			lines = append(lines, b.lines[(b.head+i)%b.capacity])
		}
	}
	return lines, b.total, b.partial.String()
}

// Text returns every retained line joined with newlines.
func (b *Buffer) Text() string {
	lines := b.Snapshot(0)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Len returns the number of complete lines currently retained.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Total returns the number of complete lines ever written.
func (b *Buffer) Total() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Capacity returns the retention limit.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// runeBoundary backs n off to the start of the rune it falls inside.
func runeBoundary(text []byte, n int) int {
	for n > 0 && n < len(text) && !utf8.RuneStart(text[n]) {
		n--
	}
	return n
}

// incompleteTail returns the offset where a truncated trailing rune starts,
// or len(data) when the data ends on a rune boundary.
func incompleteTail(data []byte) int {
	n := len(data)
	for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if utf8.FullRune(data[i:]) {
				return n
			}
			return i
		}
	}
	return n
}
