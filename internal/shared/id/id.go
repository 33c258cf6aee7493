// Package id provides identifier generation for proxied pages.
//
// Three kinds of identifiers are minted here:
//   - WindowID: ULID with a "win" prefix, one per browsing context
//   - SessionID: uuid identifying a proxy session, embedded in sync cookies
//   - Sequence: strictly increasing integers used to correlate messages
//
// ULIDs are lexicographically sortable, so window ids in logs read in creation
// order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// WindowID identifies a browsing context (top window or frame)
type WindowID string

// SessionID identifies a proxy session
type SessionID string

const (
	WindowPrefix = "win"
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
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewWindowID generates a new window ID
func NewWindowID() WindowID {
	return WindowID(Default().GenerateWithPrefix(WindowPrefix))
}

// NewSessionID generates a new proxy session ID. The value never contains
// the '|' separator used inside sync cookie keys.
func NewSessionID() SessionID {
	return SessionID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func (id WindowID) String() string  { return string(id) }
func (id SessionID) String() string { return string(id) }

// IsValidWindowID checks that id has the "win_<ulid>" shape
func IsValidWindowID(id string) bool {
	prefix, rest, ok := strings.Cut(id, "_")
	if !ok || prefix != WindowPrefix {
		return false
	}
	_, err := ulid.Parse(rest)
	return err == nil
}

// ============================================================================
// Sequence
// ============================================================================

// Sequence hands out strictly increasing integers starting at 1.
// The zero value is ready to use.
type Sequence struct {
	mu   sync.Mutex
	last int
}

// Next returns a value greater than every value previously returned
func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last++
	return s.last
}
