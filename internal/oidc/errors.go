package oidc

import (
	"errors"
	"fmt"
)

// Errors returned by the identity core. Verification failures are
// terminal and must never be retried; *DiscoveryError and
// *TokenExchangeError wrap network-level failures that a caller may
// retry with backoff.
var (
	ErrMissingIDToken   = errors.New("oidc: token response missing id_token")
	ErrInvalidSignature = errors.New("oidc: invalid id token signature")
	ErrInvalidClaims    = errors.New("oidc: id token claims rejected")
	ErrExpiredToken     = errors.New("oidc: id token outside its validity window")
	ErrNonceMismatch    = errors.New("oidc: nonce mismatch")
	ErrStateMismatch    = errors.New("oidc: state mismatch")
)

// DiscoveryError reports a failure to fetch or parse provider metadata
// (the well-known document or the JWKS). The wrapped error carries the
// raw response detail for diagnostics; callers must not forward it to
// clients.
type DiscoveryError struct {
	Endpoint string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("oidc: discovery failed for %s: %v", e.Endpoint, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// TokenExchangeError reports a failed authorization-code exchange,
// tagged with the provider's HTTP status when one was received.
type TokenExchangeError struct {
	StatusCode int
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("oidc: token exchange failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("oidc: token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}
