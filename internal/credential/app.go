package credential

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RoM4iK/tinker-agent/internal/telemetry"
	"github.com/golang-jwt/jwt/v5"
)

// acceptHeader is the media type the token endpoint expects.
const acceptHeader = "application/vnd.github+json"

// maxErrorBody bounds how much of a failed response is surfaced.
const maxErrorBody = 4096

// App is the application-identity strategy.
type App struct {
	ClientID       string
	InstallationID string
	Key            *rsa.PrivateKey

	// BaseURL is the API root, e.g. https://api.github.com.
	BaseURL string
	HTTP    *http.Client
	Cache   *FileCache
	Now     func() time.Time
}

// APIBase returns the API root for a hosting domain.
func APIBase(host string) string {
	if host == "" {
		host = "github.com"
	}
	return "https://api." + host
}

// ParsePrivateKey decodes a PEM RSA key in PKCS#1 or PKCS#8 form.
func ParsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key, nil
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Token implements [Source]. A cached token valid beyond the refresh
// margin is returned without network access; otherwise a fresh one is
// minted and cached.
func (a *App) Token(ctx context.Context) (string, error) {
	now := a.now()
	if a.Cache != nil {
		if tok, ok := a.Cache.Load(now); ok {
			telemetry.RecordTokenCacheHit(ctx, a.InstallationID)
			return tok.Token, nil
		}
	}

	start := time.Now()
	tok, err := a.Mint(ctx, now)
	telemetry.RecordTokenMint(ctx, a.InstallationID, float64(time.Since(start).Microseconds())/1000, err)
	if err != nil {
		return "", err
	}
	if a.Cache != nil {
		// A failed write only costs the next caller a round trip.
		_ = a.Cache.Store(tok, now)
	}
	return tok.Token, nil
}

// SignAssertion builds the RS256 assertion presented to the token
// endpoint.
func (a *App) SignAssertion(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    a.ClientID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.Key)
	if err != nil {
		return "", fmt.Errorf("signing assertion: %w", err)
	}
	return s, nil
}

// Mint exchanges a fresh assertion for an installation token.
func (a *App) Mint(ctx context.Context, now time.Time) (CachedToken, error) {
	if a.ClientID == "" || a.InstallationID == "" || a.Key == nil {
		return CachedToken{}, ErrNotConfigured
	}
	assertion, err := a.SignAssertion(now)
	if err != nil {
		return CachedToken{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	url := strings.TrimRight(a.BaseURL, "/") + "/app/installations/" + a.InstallationID + "/access_tokens"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return CachedToken{}, fmt.Errorf("creating token exchange request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", acceptHeader)

	client := a.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return CachedToken{}, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return CachedToken{}, &ExchangeError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tok CachedToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return CachedToken{}, fmt.Errorf("decoding token exchange response: %w", err)
	}
	if tok.Token == "" {
		return CachedToken{}, fmt.Errorf("token exchange returned empty token")
	}
	return tok, nil
}
