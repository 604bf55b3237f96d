package dian

// auth.go - bearer token acquisition for the DIAN web services.
//
// The token is requested with an OAuth2 password grant derived from the signing certificate:
//
//   username   = certificate subject CN
//   password   = certificate container password
//   grant_type = password
//   scope      = "<software id> <certificate serial>"
//
// A token is served from cache while now < expiry - safety margin. When there is no usable token,
// concurrent callers share one exchange (singleflight). The exchange runs with its own timeout and
// is not cancelled when the caller that started it gives up; callers waiting on it can still
// abandon the wait through their own context.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/sync/singleflight"

	"github.com/facturae-co/dian-gateway/app/internal/crypto"
)

const (
	DefaultExchangeTimeout = 30 * time.Second
	DefaultSafetyMargin    = 300 * time.Second

	// maxTokenResponseSize bounds the token endpoint response read into memory
	maxTokenResponseSize = 1 << 20

	tokenFlightKey = "token"
)

// CertificateInfoProvider exposes the signing certificate metadata used to derive credentials.
// *crypto.CertificateStore satisfies it.
type CertificateInfoProvider interface {
	CertificateInfo() (crypto.CertificateInfo, error)
}

// TokenManagerConfig configures a TokenManager.
type TokenManagerConfig struct {
	AuthURL    string
	SoftwareID string

	// Password is the certificate container password, sent as the grant password
	Password string

	// HTTPClient defaults to a client with ExchangeTimeout as its timeout
	HTTPClient *http.Client

	// ExchangeTimeout bounds a single token exchange (default 30s)
	ExchangeTimeout time.Duration

	// SafetyMargin is subtracted from the token expiry before it is considered stale
	// (default 300s, a negative value disables it)
	SafetyMargin time.Duration

	// Now defaults to time.Now
	Now func() time.Time
}

// TokenManager caches the DIAN bearer token and refreshes it on demand.
// It is safe for concurrent use.
type TokenManager struct {
	cfg    TokenManagerConfig
	certs  CertificateInfoProvider
	logger *slog.Logger

	// mu guards token. It is never held during the exchange.
	mu    sync.RWMutex
	token *AuthToken

	flight singleflight.Group
}

// NewTokenManager creates a TokenManager. It fails when AuthURL or SoftwareID is missing.
func NewTokenManager(cfg TokenManagerConfig, certs CertificateInfoProvider, logger *slog.Logger) (*TokenManager, error) {
	if cfg.AuthURL == "" {
		return nil, NewConfigError("authenticate", "auth URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.AuthURL); err != nil {
		return nil, NewConfigError("authenticate", fmt.Sprintf("invalid auth URL %q", cfg.AuthURL))
	}
	if cfg.SoftwareID == "" {
		return nil, NewConfigError("authenticate", "software id is required")
	}
	if certs == nil {
		return nil, NewConfigError("authenticate", "certificate store is required")
	}

	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = DefaultExchangeTimeout
	}
	if cfg.SafetyMargin < 0 {
		cfg.SafetyMargin = 0
	} else if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.ExchangeTimeout}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenManager{cfg: cfg, certs: certs, logger: logger}, nil
}

// GetToken returns a usable bearer token, exchanging credentials for a new one when needed.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	if value, ok := m.cached(); ok {
		return value, nil
	}

	ch := m.flight.DoChan(tokenFlightKey, func() (any, error) {
		// a flight that finished just before this one started may have stored a token
		if value, ok := m.cached(); ok {
			return value, nil
		}

		exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ExchangeTimeout)
		defer cancel()

		token, err := m.exchange(exchangeCtx)

		m.mu.Lock()
		m.token = token
		m.mu.Unlock()

		if err != nil {
			return nil, err
		}
		return token.Value, nil
	})

	select {
	case <-ctx.Done():
		return "", WrapAuthError(ctx.Err(), "gave up waiting for token")
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next GetToken performs an exchange.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

// InvalidateToken drops the cached token only if it is still value. A caller holding a rejected
// token uses this so that a token another caller just obtained survives.
func (m *TokenManager) InvalidateToken(value string) {
	m.mu.Lock()
	if m.token != nil && m.token.Value == value {
		m.token = nil
	}
	m.mu.Unlock()
}

// Token returns a copy of the cached token, if any, regardless of whether it is still usable.
func (m *TokenManager) Token() (AuthToken, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return AuthToken{}, false
	}
	return *m.token, true
}

func (m *TokenManager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token.usable(m.cfg.Now(), m.cfg.SafetyMargin) {
		return m.token.Value, true
	}
	return "", false
}

// exchange performs the password grant. It returns a nil token on any failure.
func (m *TokenManager) exchange(ctx context.Context) (*AuthToken, error) {
	info, err := m.certs.CertificateInfo()
	if err != nil {
		return nil, WrapAuthError(err, "signing certificate unavailable")
	}
	if info.CommonName == "" {
		return nil, NewAuthError("signing certificate has no subject common name")
	}

	form := url.Values{}
	form.Set("username", info.CommonName)
	form.Set("password", m.cfg.Password)
	form.Set("grant_type", "password")
	form.Set("scope", m.cfg.SoftwareID+" "+info.SerialNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, WrapAuthError(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	issuedAt := m.cfg.Now()
	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, WrapAuthError(err, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, WrapAuthError(err, "failed to read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &DianError{
			code:       ErrCodeAuth,
			op:         "authenticate",
			statusCode: resp.StatusCode,
			message:    fmt.Sprintf("token endpoint rejected the request: %s", snippet(body)),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, WrapAuthError(err, "malformed token response")
	}
	if tr.AccessToken == "" {
		return nil, NewAuthError("token response has no access_token")
	}

	expiresAt, err := tokenExpiry(tr, issuedAt)
	if err != nil {
		return nil, err
	}

	if !expiresAt.Add(-m.cfg.SafetyMargin).After(issuedAt) {
		m.logger.Warn("token lifetime is shorter than the safety margin; it will not be reused",
			slog.Time("expires_at", expiresAt),
			slog.Duration("safety_margin", m.cfg.SafetyMargin),
		)
	}

	m.logger.Info("DIAN token obtained",
		slog.String("username", info.CommonName),
		slog.Time("expires_at", expiresAt),
	)

	return &AuthToken{Value: tr.AccessToken, ExpiresAt: expiresAt}, nil
}

// tokenExpiry returns issuedAt + expires_in, or the exp claim of the token when
// expires_in is absent and the token is a JWT.
func tokenExpiry(tr tokenResponse, issuedAt time.Time) (time.Time, error) {
	if tr.ExpiresIn != "" {
		seconds, err := tr.ExpiresIn.Int64()
		if err != nil {
			return time.Time{}, WrapAuthError(err, fmt.Sprintf("invalid expires_in %q", tr.ExpiresIn))
		}
		if seconds > 0 {
			return issuedAt.Add(time.Duration(seconds) * time.Second), nil
		}
	}

	token, err := jwt.ParseInsecure([]byte(tr.AccessToken))
	if err != nil {
		return time.Time{}, NewAuthError("token response has no expires_in and the token is not a JWT")
	}
	exp, ok := token.Expiration()
	if !ok || exp.IsZero() {
		return time.Time{}, NewAuthError("token response has no expires_in and the token has no exp claim")
	}
	return exp, nil
}

func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
