// Package credential produces access tokens for the code-hosting API.
//
// Two strategies exist. [Static] returns a configured token verbatim.
// [App] signs a short-lived assertion with an application's private
// key and exchanges it for an installation token, caching the result in
// a single file shared by every process in the container so that at
// most one network round trip happens per token lifetime.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Source yields a usable access token.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Safety margin and assertion window.
const (
	// RefreshMargin is how long before expiry a token stops being
	// served. Installation tokens live one hour.
	RefreshMargin = 5 * time.Minute

	// assertionSkew backdates the issued-at claim to tolerate clock
	// drift between host and provider.
	assertionSkew = 60 * time.Second

	// assertionTTL is the assertion lifetime from now. The provider
	// rejects anything beyond ten minutes.
	assertionTTL = 9 * time.Minute

	// exchangeTimeout bounds the token exchange request.
	exchangeTimeout = 30 * time.Second
)

// ErrExchangeFailed is returned when the token endpoint answers with a
// non-success status.
var ErrExchangeFailed = errors.New("credential exchange failed")

// ErrNotConfigured is returned when no strategy can be built from the
// environment.
var ErrNotConfigured = errors.New("no credential strategy configured")

// ExchangeError carries the provider's response.
type ExchangeError struct {
	Status int
	Body   string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange returned HTTP %d: %s", e.Status, e.Body)
}

// Unwrap lets errors.Is match [ErrExchangeFailed].
func (e *ExchangeError) Unwrap() error { return ErrExchangeFailed }

// Static is the static token strategy. It never expires and is never
// cached.
type Static string

// Token implements [Source].
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNotConfigured
	}
	return string(s), nil
}
