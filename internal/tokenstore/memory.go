package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/kavith/streamgate/internal/models"
)

// MemoryStore is an in-process Store for tests and single-node deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]models.StreamToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]models.StreamToken)}
}

func (s *MemoryStore) Insert(_ context.Context, tok models.StreamToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok.ID] = tok
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.StreamToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[id]
	if !ok {
		return models.StreamToken{}, ErrNotFound
	}
	return tok, nil
}

func (s *MemoryStore) Refresh(_ context.Context, id string, expiresAt time.Time) (models.StreamToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return models.StreamToken{}, ErrNotFound
	}
	if tok.State == models.TokenRevoked {
		return models.StreamToken{}, ErrRevoked
	}
	tok.ExpiresAt = expiresAt
	tok.State = models.TokenActive
	s.tokens[id] = tok
	return tok, nil
}

func (s *MemoryStore) SetState(_ context.Context, id string, state models.TokenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	tok.State = state
	s.tokens[id] = tok
	return nil
}

func (s *MemoryStore) CompareAndSwapState(_ context.Context, id string, from, to models.TokenState) (models.StreamToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok || tok.State != from {
		return models.StreamToken{}, false, nil
	}
	tok.State = to
	s.tokens[id] = tok
	return tok, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]models.StreamToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]models.StreamToken, 0, len(s.tokens))
	for _, tok := range s.tokens {
		if ownerID == "" || tok.OwnerID == ownerID {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}
