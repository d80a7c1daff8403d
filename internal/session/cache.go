package session

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"mgate/internal/logger"
)

// Cache holds the broker access token and the moment it was issued, persisted
// as a small JSON file. A token is only good for the calendar day it was set
// on; crossing midnight invalidates it without an explicit clear.
//
// Load, Save and Clear never return errors: persistence failures degrade to
// "not logged in" and are logged.
type Cache struct {
	mu   sync.Mutex
	path string
	now  func() time.Time

	accessToken string
	tokenSetAt  time.Time
}

type persistedToken struct {
	AccessToken string `json:"access_token"`
	TokenSetAt  int64  `json:"token_set_at"`
}

// NewCache creates an empty cache backed by path.
func NewCache(path string) *Cache {
	return &Cache{path: path, now: time.Now}
}

// setClock overrides the time source for tests.
func (c *Cache) setClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// IsValid reports whether a token is present and was set on the current
// calendar day (server local time).
func (c *Cache) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validLocked()
}

func (c *Cache) validLocked() bool {
	if c.accessToken == "" || c.tokenSetAt.IsZero() {
		return false
	}
	ty, tm, td := c.tokenSetAt.Date()
	ny, nm, nd := c.now().Date()
	return ty == ny && tm == nm && td == nd
}

// Token returns the cached access token, or "" when none is set.
func (c *Cache) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Set stores a fresh token stamped with the current time and persists it.
func (c *Cache) Set(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.tokenSetAt = c.now()
	c.mu.Unlock()
	c.Save()
}

// Save writes the token pair to the backing file.
func (c *Cache) Save() {
	c.mu.Lock()
	record := persistedToken{
		AccessToken: c.accessToken,
		TokenSetAt:  c.tokenSetAt.Unix(),
	}
	path := c.path
	c.mu.Unlock()

	data, err := json.Marshal(record)
	if err == nil {
		err = os.WriteFile(path, data, 0o600)
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("failed to persist token cache")
	}
}

// Load populates the cache from the backing file and immediately
// re-validates; a stale token clears the fields and removes the file.
func (c *Cache) Load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("failed to load token cache")
		}
		return
	}

	var record persistedToken
	if err := json.Unmarshal(data, &record); err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("failed to parse token cache")
		c.Clear()
		return
	}

	c.mu.Lock()
	c.accessToken = record.AccessToken
	if record.TokenSetAt > 0 {
		c.tokenSetAt = time.Unix(record.TokenSetAt, 0)
	} else {
		c.tokenSetAt = time.Time{}
	}
	stale := !c.validLocked()
	c.mu.Unlock()

	if stale {
		c.Clear()
	}
}

// Clear resets both fields and removes the backing file if present.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenSetAt = time.Time{}
	path := c.path
	c.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("failed to delete token file")
	}
}
