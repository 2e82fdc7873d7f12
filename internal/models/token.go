package models

import (
	"time"
)

// TokenState is the lifecycle state of a stream token.
type TokenState string

const (
	TokenActive   TokenState = "active"
	TokenRevoked  TokenState = "revoked"
	TokenConsumed TokenState = "consumed"
)

// StreamToken authorizes one download configuration (source URL + format)
// without re-exposing the source URL to the client. The bound request
// parameters are immutable once issued; only state and expiry may change.
type StreamToken struct {
	ID      string `bson:"_id" json:"token"`
	OwnerID string `bson:"owner" json:"owner"`
	// The source URL is never serialized; hiding it from the client is the
	// point of the token.
	SourceURL    string     `bson:"source_url" json:"-"`
	FormatID     string     `bson:"format_id" json:"format_id"`
	DisplayTitle string     `bson:"display_title" json:"title"`
	State        TokenState `bson:"state" json:"state"`
	IssuedAt     time.Time  `bson:"issued_at" json:"issued_at"`
	ExpiresAt    time.Time  `bson:"expires_at" json:"expires_at"`
}
