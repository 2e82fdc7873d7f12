package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/kavith/streamgate/internal/models"
	"github.com/kavith/streamgate/internal/tokenstore"
)

// TokenConfig carries the tunables of the token service so tests can run
// with their own TTLs and policies.
type TokenConfig struct {
	TTL time.Duration
	// SingleUse makes a token consumable exactly once; the default is
	// multi-use until expiry or revoke.
	SingleUse bool
}

// TokenService owns the lifecycle of stream tokens: issue, verify, refresh,
// revoke and (under the single-use policy) consume.
type TokenService struct {
	store tokenstore.Store
	cfg   TokenConfig
}

func NewTokenService(store tokenstore.Store, cfg TokenConfig) *TokenService {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &TokenService{store: store, cfg: cfg}
}

func (s *TokenService) SingleUse() bool {
	return s.cfg.SingleUse
}

func generateTokenID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue writes a fresh active token bound to the given download request.
func (s *TokenService) Issue(ctx context.Context, ownerID, sourceURL, formatID, title string) (models.StreamToken, error) {
	id, err := generateTokenID()
	if err != nil {
		return models.StreamToken{}, err
	}

	now := time.Now()
	tok := models.StreamToken{
		ID:           id,
		OwnerID:      ownerID,
		SourceURL:    sourceURL,
		FormatID:     formatID,
		DisplayTitle: title,
		State:        models.TokenActive,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.cfg.TTL),
	}

	if err := s.store.Insert(ctx, tok); err != nil {
		return models.StreamToken{}, err
	}
	return tok, nil
}

// Verify checks that the token exists, is active and has not expired. It
// never mutates state.
func (s *TokenService) Verify(ctx context.Context, id string) (models.StreamToken, error) {
	tok, err := s.store.Get(ctx, id)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return models.StreamToken{}, ErrTokenNotFound
	}
	if err != nil {
		return models.StreamToken{}, err
	}

	switch tok.State {
	case models.TokenRevoked:
		return models.StreamToken{}, ErrTokenRevoked
	case models.TokenConsumed:
		return models.StreamToken{}, ErrTokenConsumed
	}
	if s.IsExpired(tok) {
		return models.StreamToken{}, ErrTokenExpired
	}
	return tok, nil
}

// Refresh extends the token's expiry. An expired or consumed token is
// re-armed (re-issuance with the same bound parameters); a revoked token
// stays revoked. When ownerID is non-empty the token must belong to it.
func (s *TokenService) Refresh(ctx context.Context, id, ownerID string) (models.StreamToken, error) {
	if ownerID != "" {
		if err := s.checkOwner(ctx, id, ownerID); err != nil {
			return models.StreamToken{}, err
		}
	}

	tok, err := s.store.Refresh(ctx, id, time.Now().Add(s.cfg.TTL))
	switch {
	case errors.Is(err, tokenstore.ErrNotFound):
		return models.StreamToken{}, ErrTokenNotFound
	case errors.Is(err, tokenstore.ErrRevoked):
		return models.StreamToken{}, ErrTokenRevoked
	case err != nil:
		return models.StreamToken{}, err
	}
	return tok, nil
}

// Revoke marks the token revoked. Revoking an already-revoked token is a
// no-op success. When ownerID is non-empty the token must belong to it.
func (s *TokenService) Revoke(ctx context.Context, id, ownerID string) error {
	if ownerID != "" {
		if err := s.checkOwner(ctx, id, ownerID); err != nil {
			return err
		}
	}

	err := s.store.SetState(ctx, id, models.TokenRevoked)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return ErrTokenNotFound
	}
	return err
}

// Consume atomically transitions an active token to consumed. Used by the
// orchestrator when the single-use policy is enabled.
func (s *TokenService) Consume(ctx context.Context, id string) (models.StreamToken, error) {
	tok, swapped, err := s.store.CompareAndSwapState(ctx, id, models.TokenActive, models.TokenConsumed)
	if err != nil {
		return models.StreamToken{}, err
	}
	if swapped {
		if s.IsExpired(tok) {
			return models.StreamToken{}, ErrTokenExpired
		}
		return tok, nil
	}

	// Swap failed: report why.
	existing, getErr := s.store.Get(ctx, id)
	if errors.Is(getErr, tokenstore.ErrNotFound) {
		return models.StreamToken{}, ErrTokenNotFound
	}
	if getErr != nil {
		return models.StreamToken{}, getErr
	}
	if existing.State == models.TokenRevoked {
		return models.StreamToken{}, ErrTokenRevoked
	}
	return models.StreamToken{}, ErrTokenConsumed
}

// IsExpired is a pure function of the current clock and the token's expiry.
func (s *TokenService) IsExpired(tok models.StreamToken) bool {
	return time.Now().After(tok.ExpiresAt)
}

func (s *TokenService) checkOwner(ctx context.Context, id, ownerID string) error {
	tok, err := s.store.Get(ctx, id)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return ErrTokenNotFound
	}
	if err != nil {
		return err
	}
	// Another owner's token is indistinguishable from a missing one.
	if tok.OwnerID != ownerID {
		return ErrTokenNotFound
	}
	return nil
}
