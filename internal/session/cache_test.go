package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return NewCache(filepath.Join(t.TempDir(), "tokens.json"))
}

func TestEmptyCacheIsInvalid(t *testing.T) {
	c := newTestCache(t)
	assert.False(t, c.IsValid())
	assert.Empty(t, c.Token())
}

func TestSetMakesCacheValid(t *testing.T) {
	c := newTestCache(t)
	c.Set("tok-123")

	assert.True(t, c.IsValid())
	assert.Equal(t, "tok-123", c.Token())
}

func TestMidnightCrossingInvalidates(t *testing.T) {
	c := newTestCache(t)

	now := time.Date(2024, 3, 15, 23, 50, 0, 0, time.Local)
	c.setClock(func() time.Time { return now })
	c.Set("tok-123")
	assert.True(t, c.IsValid())

	// Ten minutes later it is the next calendar day.
	c.setClock(func() time.Time { return now.Add(20 * time.Minute) })
	assert.False(t, c.IsValid(), "token set yesterday must be invalid without an explicit clear")

	// A token set early in the day stays valid until midnight.
	c2 := newTestCache(t)
	c2.setClock(func() time.Time { return time.Date(2024, 3, 15, 0, 5, 0, 0, time.Local) })
	c2.Set("tok-456")
	c2.setClock(func() time.Time { return time.Date(2024, 3, 15, 23, 59, 0, 0, time.Local) })
	assert.True(t, c2.IsValid())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	c := NewCache(path)
	c.Set("tok-123")

	loaded := NewCache(path)
	loaded.Load()

	assert.True(t, loaded.IsValid())
	assert.Equal(t, "tok-123", loaded.Token())
}

func TestLoadDeletesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	yesterday := time.Now().AddDate(0, 0, -1)
	c := NewCache(path)
	c.setClock(func() time.Time { return yesterday })
	c.Set("tok-old")
	require.FileExists(t, path)

	loaded := NewCache(path)
	loaded.Load()

	assert.False(t, loaded.IsValid())
	assert.Empty(t, loaded.Token())
	assert.NoFileExists(t, path)
}

func TestClearThenLoadYieldsEmptyCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	c := NewCache(path)
	c.Set("tok-123")
	c.Clear()

	assert.NoFileExists(t, path)

	loaded := NewCache(path)
	loaded.Load()
	assert.False(t, loaded.IsValid())
	assert.Empty(t, loaded.Token())
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	c := NewCache(path)
	c.Load()

	assert.False(t, c.IsValid())
	assert.NoFileExists(t, path)
}
