// Package idgen provides ID generation for notifications and interactions.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Generator defines the interface for ID generation
type Generator interface {
	// Generate creates a new unique ID
	Generate() string
	// GenerateWithPrefix creates a new unique ID with the given prefix
	GenerateWithPrefix(prefix string) string
}

// UUIDGenerator generates RFC 4122 v4 identifiers. This is the default
// generator used by the service and the interaction registry.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUID generator
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Generate creates a new UUID string
func (g *UUIDGenerator) Generate() string {
	return uuid.New().String()
}

// GenerateWithPrefix creates a new UUID with the given prefix
func (g *UUIDGenerator) GenerateWithPrefix(prefix string) string {
	if prefix == "" {
		return g.Generate()
	}
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String())
}

// SimpleGenerator produces timestamp_counter_random IDs. It needs no
// entropy pool state beyond crypto/rand and keeps IDs roughly sortable by
// creation time, which the tests rely on.
type SimpleGenerator struct {
	counter uint64
}

// NewSimpleGenerator creates a new simple ID generator
func NewSimpleGenerator() *SimpleGenerator {
	return &SimpleGenerator{}
}

// Generate creates a new unique ID in format: timestamp_counter_random
func (g *SimpleGenerator) Generate() string {
	return g.GenerateWithPrefix("")
}

// GenerateWithPrefix creates a new unique ID with the given prefix
func (g *SimpleGenerator) GenerateWithPrefix(prefix string) string {
	timestamp := time.Now().UnixNano()
	counter := atomic.AddUint64(&g.counter, 1)

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		// crypto/rand failure is effectively fatal elsewhere; fall back to
		// the counter so ID generation itself never errors
		randomBytes = []byte{
			byte(counter >> 24),
			byte(counter >> 16),
			byte(counter >> 8),
			byte(counter),
		}
	}

	randomHex := hex.EncodeToString(randomBytes)

	if prefix != "" {
		return fmt.Sprintf("%s_%d_%d_%s", prefix, timestamp, counter, randomHex)
	}
	return fmt.Sprintf("%d_%d_%s", timestamp, counter, randomHex)
}

// SequenceGenerator produces deterministic seq-N IDs for tests
type SequenceGenerator struct {
	counter uint64
	prefix  string
}

// NewSequenceGenerator creates a deterministic generator with the given prefix
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "seq"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns prefix-N with N increasing from 1
func (g *SequenceGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, atomic.AddUint64(&g.counter, 1))
}

// GenerateWithPrefix ignores the stored prefix and uses the supplied one
func (g *SequenceGenerator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddUint64(&g.counter, 1))
}
