package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"mgate/internal/broker"
	"mgate/internal/config"
	"mgate/internal/errors"
	"mgate/internal/logger"
)

// Manager owns the broker client and the token cache and drives the two-step
// login flow: LoggedOut -> OtpRequested -> SessionEstablished. Route handlers
// receive it by injection; there are no package-level globals.
type Manager struct {
	mu     sync.Mutex
	client broker.Client
	cache  *Cache

	apiKey    string
	apiSecret string
	username  string
	password  string
}

// NewManager wires a broker client and cache with the configured credentials.
func NewManager(client broker.Client, cache *Cache, cfg *config.BrokerConfig) *Manager {
	return &Manager{
		client:    client,
		cache:     cache,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		username:  cfg.Username,
		password:  cfg.Password,
	}
}

// Restore loads a persisted token at startup and, when still valid for today,
// installs it on the broker client.
func (m *Manager) Restore() {
	m.cache.Load()
	if m.cache.IsValid() {
		m.client.SetAccessToken(m.cache.Token())
		logger.Info("session restored from token cache")
	}
}

// Login performs step one: the broker dispatches an OTP out-of-band. No token
// is issued yet.
func (m *Manager) Login(ctx context.Context) (json.RawMessage, error) {
	if m.username == "" || m.password == "" {
		return nil, errors.New(errors.ErrCodeValidation, "Login credentials not configured", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.client.Login(ctx, m.username, m.password)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "Login failed")
	}

	var env broker.Envelope
	if jsonErr := json.Unmarshal(resp, &env); jsonErr == nil && env.Status != "" && !env.Success() {
		return nil, errors.New(errors.ErrCodeUnauthorized, "Login failed", nil)
	}
	return resp, nil
}

// GenerateSession performs step two: exchanges the OTP plus checksum for an
// access token, stores it, persists it and installs it on the broker client.
func (m *Manager) GenerateSession(ctx context.Context, otp string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	checksum := Checksum(m.apiKey, otp, m.apiSecret)
	resp, err := m.client.GenerateSession(ctx, m.apiKey, otp, checksum)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "Session exchange failed")
	}

	token := broker.AccessTokenFromSession(resp)
	if token == "" {
		return nil, errors.New(errors.ErrCodeUpstream, "Broker returned no access token", nil)
	}

	m.cache.Set(token)
	m.client.SetAccessToken(token)
	logger.Info("new session established")
	return resp, nil
}

// RequireSession gates every pass-through broker call: an invalid cache fails
// immediately without contacting the broker.
func (m *Manager) RequireSession() error {
	if m.client == nil {
		return errors.ErrBrokerUnavailable()
	}
	if !m.cache.IsValid() {
		return errors.ErrSessionExpired()
	}
	return nil
}

// Token returns the current access token ("" when logged out).
func (m *Manager) Token() string {
	return m.cache.Token()
}

// Invalidate clears the cached session, returning the state machine to
// LoggedOut.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Clear()
	m.client.SetAccessToken("")
}

// Client exposes the underlying broker client for pass-through handlers.
func (m *Manager) Client() broker.Client {
	return m.client
}

// Checksum builds the tamper check the session-exchange call requires:
// hex(SHA-256(api_key || otp || api_secret)).
func Checksum(apiKey, otp, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + otp + apiSecret))
	return hex.EncodeToString(sum[:])
}
