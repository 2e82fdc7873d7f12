package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavith/streamgate/internal/tokenstore"
)

func newTokenService(ttl time.Duration, singleUse bool) *TokenService {
	return NewTokenService(tokenstore.NewMemoryStore(), TokenConfig{TTL: ttl, SingleUse: singleUse})
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTokenService(time.Minute, false)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "user-1", "https://example/video", "22", "clip")
	require.NoError(t, err)
	assert.Len(t, tok.ID, 32) // 16 random bytes, hex encoded
	assert.Equal(t, "user-1", tok.OwnerID)
	assert.Equal(t, tok.IssuedAt.Add(time.Minute), tok.ExpiresAt)

	got, err := svc.Verify(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, tok.SourceURL, got.SourceURL)
	assert.Equal(t, tok.FormatID, got.FormatID)
}

func TestIssueGeneratesUniqueIDs(t *testing.T) {
	svc := newTokenService(time.Minute, false)
	ctx := context.Background()

	a, err := svc.Issue(ctx, "u", "https://example/video", "22", "clip")
	require.NoError(t, err)
	b, err := svc.Issue(ctx, "u", "https://example/video", "22", "clip")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestVerifyUnknownToken(t *testing.T) {
	svc := newTokenService(time.Minute, false)

	_, err := svc.Verify(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestVerifyExpired(t *testing.T) {
	svc := newTokenService(10*time.Millisecond, false)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "user-1", "https://example/video", "22", "clip")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = svc.Verify(ctx, tok.ID)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRevokeThenVerify(t *testing.T) {
	svc := newTokenService(time.Minute, false)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "user-1", "https://example/video", "22", "clip")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, tok.ID, "user-1"))
	_, err = svc.Verify(ctx, tok.ID)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// Revoking again is a no-op success.
	assert.NoError(t, svc.Revoke(ctx, tok.ID, "user-1"))
}

func TestRevokeUnknownToken(t *testing.T) {
	svc := newTokenService(time.Minute, false)
	err := svc.Revoke(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRefreshExpiredToken(t *testing.T) {
	svc := newTokenService(10*time.Millisecond, false)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "user-1", "https://example/video", "22", "clip")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = svc.Verify(ctx, tok.ID)
	require.ErrorIs(t, err, ErrTokenExpired)

	refreshed, err := svc.Refresh(ctx, tok.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, tok.SourceURL, refreshed.SourceURL)
	assert.Equal(t, tok.FormatID, refreshed.FormatID)

	_, err = svc.Verify(ctx, tok.ID)
	assert.NoError(t, err)
}

func TestRefreshRevokedToken(t *testing.T) {
	svc := newTokenService(time.Minute, false)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "user-1", "https://example/video", "22", "clip")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, tok.ID, "user-1"))

	_, err = svc.Refresh(ctx, tok.ID, "user-1")
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestOwnerScoping(t *testing.T) {
	svc := newTokenService(time.Minute, false)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "user-1", "https://example/video", "22", "clip")
	require.NoError(t, err)

	// Another owner's token is reported as missing, not forbidden.
	_, err = svc.Refresh(ctx, tok.ID, "user-2")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	err = svc.Revoke(ctx, tok.ID, "user-2")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// An empty owner skips the scope check (admin paths).
	_, err = svc.Refresh(ctx, tok.ID, "")
	assert.NoError(t, err)
}

func TestConsumeSingleUse(t *testing.T) {
	svc := newTokenService(time.Minute, true)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "user-1", "https://example/video", "22", "clip")
	require.NoError(t, err)

	_, err = svc.Consume(ctx, tok.ID)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, tok.ID)
	assert.ErrorIs(t, err, ErrTokenConsumed)
	_, err = svc.Verify(ctx, tok.ID)
	assert.ErrorIs(t, err, ErrTokenConsumed)
}

func TestConsumeRevokedToken(t *testing.T) {
	svc := newTokenService(time.Minute, true)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "user-1", "https://example/video", "22", "clip")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, tok.ID, ""))

	_, err = svc.Consume(ctx, tok.ID)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestIsExpired(t *testing.T) {
	svc := newTokenService(time.Minute, false)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "user-1", "https://example/video", "22", "clip")
	require.NoError(t, err)
	assert.False(t, svc.IsExpired(tok))

	tok.ExpiresAt = time.Now().Add(-time.Second)
	assert.True(t, svc.IsExpired(tok))
}
