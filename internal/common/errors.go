// Package common defines shared constants and sentinel errors used across
// sealchat server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Messaging taxonomy. Every failure while handling a realtime frame
	// resolves to one of these before it is rendered back to the client.
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrAuthorizationDenied    = errors.New("authorization denied")
	ErrRateLimited            = errors.New("rate limited")
	ErrValidationFailed       = errors.New("validation failed")
	ErrEncryption             = errors.New("encryption error")
	ErrDecryption             = errors.New("decryption error")
	ErrAttachmentUnavailable  = errors.New("attachment unavailable")
	ErrTransportMalformed     = errors.New("malformed frame")

	// Key vault errors.
	ErrNoPublicKey = errors.New("no public key")
)
