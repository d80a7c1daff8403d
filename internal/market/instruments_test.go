package market

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mgate/internal/broker"
	"mgate/internal/errors"
)

func TestRefreshParsesAndSnapshots(t *testing.T) {
	snapshot := filepath.Join(t.TempDir(), "scrip_master.csv")
	store := NewStore(broker.NewMockClient(), snapshot)

	count, err := store.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, store.Count())
	assert.False(t, store.RefreshedAt().IsZero())

	data, err := os.ReadFile(snapshot)
	require.NoError(t, err)
	assert.Contains(t, string(data), "RELIANCE")
}

func TestSearch(t *testing.T) {
	store := NewStore(broker.NewMockClient(), "")
	_, err := store.Refresh(context.Background())
	require.NoError(t, err)

	matches, err := store.Search("nse", "reliance")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "2885", matches[0]["token"])
	assert.Equal(t, "RELIANCE", matches[0]["tradingsymbol"])

	_, err = store.Search("NSE", "NOSUCH")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Get(err).Code)
}

func TestSearchBeforeRefresh(t *testing.T) {
	store := NewStore(broker.NewMockClient(), "")

	_, err := store.Search("NSE", "RELIANCE")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Get(err).Code)
}

func TestRefreshUpstreamFailure(t *testing.T) {
	mock := broker.NewMockClient()
	mock.FailWith = errors.New(errors.ErrCodeUpstream, "Broker call failed", nil)
	store := NewStore(mock, "")

	_, err := store.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUpstream, errors.Get(err).Code)
	assert.Zero(t, store.Count())
}

func TestNewRefresherRejectsBadSchedule(t *testing.T) {
	store := NewStore(broker.NewMockClient(), "")

	_, err := NewRefresher(store, "not a cron spec")
	require.Error(t, err)

	r, err := NewRefresher(store, "45 8 * * *")
	require.NoError(t, err)
	r.Start()
	r.Stop()
}
