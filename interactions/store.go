package interactions

import (
	"context"
	"sync"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
)

// Store persists interaction records
type Store interface {
	// Save upserts an interaction by ID
	Save(ctx context.Context, interaction *core.Interaction) error
	// Get returns an interaction by ID
	Get(ctx context.Context, id string) (*core.Interaction, error)
	// ListForUser returns interactions addressed to the user, newest first
	ListForUser(ctx context.Context, userID string) ([]*core.Interaction, error)
	// Close releases store resources
	Close() error
}

// MemoryStore is an in-memory interaction store
type MemoryStore struct {
	mu           sync.RWMutex
	interactions map[string]*core.Interaction
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{interactions: make(map[string]*core.Interaction)}
}

func (s *MemoryStore) Save(_ context.Context, interaction *core.Interaction) error {
	if interaction == nil || interaction.ID == "" {
		return errors.ErrInvalidInteraction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *interaction
	s.interactions[interaction.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*core.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	interaction, ok := s.interactions[id]
	if !ok {
		return nil, errors.ErrInteractionNotFound
	}
	clone := *interaction
	return &clone, nil
}

func (s *MemoryStore) ListForUser(_ context.Context, userID string) ([]*core.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*core.Interaction, 0)
	for _, interaction := range s.interactions {
		if interaction.ToUser == userID {
			clone := *interaction
			list = append(list, &clone)
		}
	}
	sortNewestFirst(list)
	return list, nil
}

func (s *MemoryStore) Close() error { return nil }
