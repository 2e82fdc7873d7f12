package services

import "errors"

// Domain errors surfaced by the token service and download orchestrator.
// Handlers map these onto HTTP error kinds.
var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrTokenConsumed    = errors.New("token already consumed")
	ErrTooManyDownloads = errors.New("too many concurrent downloads")
	ErrResolutionFailed = errors.New("failed to resolve video formats")
	ErrOutputMissing    = errors.New("extractor produced no output")
	ErrClientAborted    = errors.New("client aborted transfer")
)
