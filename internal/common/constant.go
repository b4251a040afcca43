package common

const (
	// AccessTokenCookieName carries the signed access token for HTTP and
	// websocket requests.
	AccessTokenCookieName = "access_token"

	// LegacyTokenCookieName is accepted as a fallback for older clients.
	LegacyTokenCookieName = "token"

	// RefreshTokenCookieName carries the opaque refresh token.
	RefreshTokenCookieName = "refresh_token"

	// RoomPrefix prefixes per-user realtime room names: "user_<id>".
	RoomPrefix = "user_"

	// DecryptionErrorSentinel replaces message content that could not be decrypted.
	DecryptionErrorSentinel = "Error decrypting message"
)
