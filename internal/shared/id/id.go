// Package id provides centralized ID generation for the backend.
//
// Terminal sessions and requests use prefixed ULIDs:
//   - Lexicographic sortability: newer sessions sort after older ones
//   - Prefixed types: term_*, req_* make logs readable
//   - Type safety: separate types prevent passing an agent id where a
//     session id is expected
//
// Agent ids are derived from the wall clock in nanoseconds (agent_<nanos>).
// The agent generator never hands out the same value twice within one
// process, even when the clock reading repeats.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// SessionID identifies a terminal (PTY) session
type SessionID string

// AgentID identifies a supervised agent process record
type AgentID string

// RequestID identifies an API request
type RequestID string

// ============================================================================
// ID Prefixes (for debugging and type identification)
// ============================================================================

const (
	SessionPrefix = "term"
	AgentPrefix   = "agent"
	RequestPrefix = "req"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Clock Generator (agent ids)
// ============================================================================

// Clock hands out strictly increasing nanosecond readings.
type Clock struct {
	now  func() time.Time
	last atomic.Int64
}

var defaultClock = NewClock(time.Now)

// DefaultClock returns the process-wide clock. Supervisors sharing it never
// hand out the same agent id.
func DefaultClock() *Clock {
	return defaultClock
}

// NewClock creates a clock over the given time source. Nil uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns the current time in nanoseconds, bumped past the previous
// reading when the source repeats or goes backwards.
func (c *Clock) Next() int64 {
	for {
		prev := c.last.Load()
		next := c.now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// AgentID creates an agent id from the clock.
func (c *Clock) AgentID() AgentID {
	return AgentID(AgentPrefix + "_" + strconv.FormatInt(c.Next(), 10))
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewSessionID generates a new terminal session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// ============================================================================
// Type Conversion and Validation
// ============================================================================

func (id SessionID) String() string { return string(id) }
func (id AgentID) String() string   { return string(id) }
func (id RequestID) String() string { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// ParseRequestID accepts a req_<ULID> string produced by NewRequestID.
func ParseRequestID(s string) (RequestID, bool) {
	raw, ok := strings.CutPrefix(s, RequestPrefix+"_")
	if !ok || !IsValid(raw) {
		return "", false
	}
	return RequestID(s), true
}

// AgentTime extracts the creation time encoded in an agent id.
func AgentTime(id AgentID) (time.Time, error) {
	raw, ok := strings.CutPrefix(string(id), AgentPrefix+"_")
	if !ok {
		return time.Time{}, fmt.Errorf("agent id %q: missing %s_ prefix", id, AgentPrefix)
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("agent id %q: %w", id, err)
	}
	return time.Unix(0, nanos), nil
}
