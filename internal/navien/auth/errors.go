package auth

import "errors"

// Domain-specific errors for authentication.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidCredentials is returned when the cloud rejects the account
	// email/password. This is not retriable; the user must fix their
	// credentials.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenRefreshFailed is returned when a refresh-token exchange is
	// rejected by the cloud. The client falls back to a full login.
	ErrTokenRefreshFailed = errors.New("auth: token refresh rejected")

	// ErrNoStoredTokens is returned by a TokenStore when no tokens have
	// been persisted for the account.
	ErrNoStoredTokens = errors.New("auth: no stored tokens")

	// ErrNotAuthenticated is returned when an access token is requested
	// before any successful login.
	ErrNotAuthenticated = errors.New("auth: not authenticated")
)

// IsRetriable reports whether an authentication failure is worth retrying.
// Credential rejections are permanent; everything else (network errors,
// server errors) may succeed on a later attempt.
func IsRetriable(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalidCredentials)
}
