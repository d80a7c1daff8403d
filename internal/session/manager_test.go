package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mgate/internal/broker"
	"mgate/internal/config"
	"mgate/internal/errors"
)

func newTestManager(t *testing.T) (*Manager, *broker.MockClient) {
	t.Helper()
	mock := broker.NewMockClient()
	cache := NewCache(filepath.Join(t.TempDir(), "tokens.json"))
	cfg := &config.BrokerConfig{
		APIKey:    "key",
		APISecret: "secret",
		Username:  "user",
		Password:  "pass",
	}
	return NewManager(mock, cache, cfg), mock
}

func TestChecksumDeterministic(t *testing.T) {
	a := Checksum("key", "123456", "secret")
	b := Checksum("key", "123456", "secret")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	// Changing any one input changes the digest.
	assert.NotEqual(t, a, Checksum("key2", "123456", "secret"))
	assert.NotEqual(t, a, Checksum("key", "123457", "secret"))
	assert.NotEqual(t, a, Checksum("key", "123456", "secret2"))
}

func TestTwoStepLoginFlow(t *testing.T) {
	m, mock := newTestManager(t)
	ctx := context.Background()

	// LoggedOut: every pass-through call must be rejected up front.
	require.Error(t, m.RequireSession())

	// Step one dispatches an OTP; still no session.
	_, err := m.Login(ctx)
	require.NoError(t, err)
	require.Error(t, m.RequireSession())

	// Step two establishes the session.
	resp, err := m.GenerateSession(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "mock_access_token", broker.AccessTokenFromSession(resp))
	assert.NoError(t, m.RequireSession())
	assert.Equal(t, "mock_access_token", m.Token())
	assert.Equal(t, "mock_access_token", mock.AccessToken())
}

func TestLoginWithoutCredentials(t *testing.T) {
	mock := broker.NewMockClient()
	cache := NewCache(filepath.Join(t.TempDir(), "tokens.json"))
	m := NewManager(mock, cache, &config.BrokerConfig{APIKey: "key", APISecret: "secret"})

	_, err := m.Login(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.Get(err).Code)
	assert.Zero(t, mock.Calls(), "login without credentials must not reach the broker")
}

func TestGenerateSessionFailure(t *testing.T) {
	m, mock := newTestManager(t)
	mock.SessionResponse = []byte(`{"status":"success","data":{}}`)

	_, err := m.GenerateSession(context.Background(), "123456")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUpstream, errors.Get(err).Code)
	require.Error(t, m.RequireSession())
}

func TestInvalidateReturnsToLoggedOut(t *testing.T) {
	m, mock := newTestManager(t)

	_, err := m.GenerateSession(context.Background(), "123456")
	require.NoError(t, err)
	require.NoError(t, m.RequireSession())

	m.Invalidate()
	require.Error(t, m.RequireSession())
	assert.Empty(t, mock.AccessToken())
}

func TestRestoreInstallsPersistedToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	first := NewCache(path)
	first.Set("persisted-token")

	mock := broker.NewMockClient()
	m := NewManager(mock, NewCache(path), &config.BrokerConfig{APIKey: "key", APISecret: "secret"})
	m.Restore()

	assert.NoError(t, m.RequireSession())
	assert.Equal(t, "persisted-token", mock.AccessToken())
}
