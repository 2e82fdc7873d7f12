package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/kavith/streamgate/internal/models"
)

var (
	// ErrNotFound is returned when no token with the given ID exists.
	ErrNotFound = errors.New("token not found")
	// ErrRevoked is returned by Refresh when the token is revoked.
	ErrRevoked = errors.New("token revoked")
)

// Store is the durable registry of issued stream tokens. Implementations
// must be safe for concurrent use; state transitions are atomic
// check-and-set operations so racing verify/revoke/refresh calls never
// corrupt the bound request parameters.
type Store interface {
	Insert(ctx context.Context, tok models.StreamToken) error
	Get(ctx context.Context, id string) (models.StreamToken, error)
	// Refresh re-arms the token with a new expiry and active state unless
	// it has been revoked. The bound URL/format/title are never touched.
	Refresh(ctx context.Context, id string, expiresAt time.Time) (models.StreamToken, error)
	SetState(ctx context.Context, id string, state models.TokenState) error
	// CompareAndSwapState transitions state from->to atomically. The bool
	// reports whether the swap happened.
	CompareAndSwapState(ctx context.Context, id string, from, to models.TokenState) (models.StreamToken, bool, error)
	Delete(ctx context.Context, id string) error
	// List returns tokens for one owner, or all tokens when ownerID is empty.
	List(ctx context.Context, ownerID string) ([]models.StreamToken, error)
}
