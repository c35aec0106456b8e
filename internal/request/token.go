package request

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Credentials are the stored token pair.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// RefreshFunc exchanges a refresh token for new credentials. It is supplied
// by the auth collaborator; token issuance is not this layer's concern.
type RefreshFunc func(ctx context.Context, refreshToken string) (Credentials, error)

// TokenManager stores credentials, hands out access tokens, and refreshes
// them proactively when they are within the leeway of expiry. Concurrent
// refreshes collapse into a single in-flight call.
type TokenManager struct {
	mu        sync.Mutex
	creds     Credentials
	leeway    time.Duration
	refresh   RefreshFunc
	group     singleflight.Group
	listeners []func()
	logger    *zap.Logger
}

// NewTokenManager creates a token manager. refresh may be nil, in which case
// tokens are used as-is until they fail.
func NewTokenManager(refresh RefreshFunc, leeway time.Duration, logger *zap.Logger) *TokenManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{
		refresh: refresh,
		leeway:  leeway,
		logger:  logger,
	}
}

// SetCredentials stores a new token pair.
func (m *TokenManager) SetCredentials(c Credentials) {
	m.mu.Lock()
	m.creds = c
	m.mu.Unlock()
}

// OnAuthExpired registers a listener invoked when a refresh fails and the
// stored credentials are cleared.
func (m *TokenManager) OnAuthExpired(fn func()) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Token returns a valid access token, refreshing first if the current one is
// within the leeway of its expiry.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	if creds.AccessToken == "" {
		return "", ErrNoCredentials
	}
	if m.refresh != nil && expiringSoon(creds.AccessToken, m.leeway) {
		return m.ForceRefresh(ctx)
	}
	return creds.AccessToken, nil
}

// ForceRefresh performs a refresh now. Concurrent callers share one
// underlying refresh call. On failure the stored credentials are cleared and
// auth-expired listeners fire.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	token, err, _ := m.group.Do("refresh", func() (any, error) {
		m.mu.Lock()
		refreshToken := m.creds.RefreshToken
		m.mu.Unlock()
		if m.refresh == nil || refreshToken == "" {
			m.expire()
			return "", ErrNoCredentials
		}

		creds, err := m.refresh(ctx, refreshToken)
		if err != nil {
			m.logger.Warn("token refresh failed, clearing credentials", zap.Error(err))
			m.expire()
			return "", fmt.Errorf("refresh token: %w", err)
		}
		m.SetCredentials(creds)
		return creds.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// expire clears credentials and notifies listeners.
func (m *TokenManager) expire() {
	m.mu.Lock()
	m.creds = Credentials{}
	listeners := make([]func(), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// expiringSoon inspects the token's exp claim without verifying the
// signature; verification is the server's job, we only need the deadline.
// Tokens without a readable exp are treated as not expiring.
func expiringSoon(token string, leeway time.Duration) bool {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < leeway
}
