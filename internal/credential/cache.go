package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/RoM4iK/tinker-agent/internal/fsys"
	"github.com/patrickmn/go-cache"
)

// DefaultCachePath is the well-known token cache location inside an
// agent container.
const DefaultCachePath = "/tmp/github-app-token-cache"

// CachedToken is the on-disk cache record.
type CachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the token may be served at now: it must
// expire strictly later than now plus [RefreshMargin].
func (c CachedToken) ValidAt(now time.Time) bool {
	return c.Token != "" && c.ExpiresAt.After(now.Add(RefreshMargin))
}

// FileCache persists one [CachedToken] to a single file. Readers and
// writers are not mutually excluded across processes: any unreadable
// or half-written file is treated as a miss, and writes replace the
// file atomically so a reader sees either the old or the new record.
//
// A per-instance memo answers repeat lookups without touching disk.
type FileCache struct {
	fs   fsys.FS
	path string
	memo *cache.Cache
}

const memoKey = "token"

// NewFileCache returns a cache stored at path.
func NewFileCache(fs fsys.FS, path string) *FileCache {
	return &FileCache{fs: fs, path: path, memo: cache.New(cache.NoExpiration, 0)}
}

// Path returns the cache file location.
func (c *FileCache) Path() string { return c.path }

// Load returns the cached token if one is valid at now.
func (c *FileCache) Load(now time.Time) (CachedToken, bool) {
	if v, ok := c.memo.Get(memoKey); ok {
		if tok := v.(CachedToken); tok.ValidAt(now) {
			return tok, true
		}
		c.memo.Delete(memoKey)
	}
	tok, err := c.Peek()
	if err != nil || !tok.ValidAt(now) {
		return CachedToken{}, false
	}
	c.remember(tok, now)
	return tok, true
}

// Peek reads the file without checking validity.
func (c *FileCache) Peek() (CachedToken, error) {
	data, err := c.fs.ReadFile(c.path)
	if err != nil {
		return CachedToken{}, err
	}
	var tok CachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return CachedToken{}, fmt.Errorf("decoding token cache: %w", err)
	}
	return tok, nil
}

// Store records tok and atomically replaces the cache file.
func (c *FileCache) Store(tok CachedToken, now time.Time) error {
	c.remember(tok, now)
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token cache: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating token cache dir: %w", err)
		}
	}
	tmp := c.path + ".tmp-" + strconv.Itoa(os.Getpid())
	if err := c.fs.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token cache: %w", err)
	}
	if err := c.fs.Rename(tmp, c.path); err != nil {
		_ = c.fs.Remove(tmp)
		return fmt.Errorf("replacing token cache: %w", err)
	}
	return nil
}

func (c *FileCache) remember(tok CachedToken, now time.Time) {
	ttl := tok.ExpiresAt.Sub(now) - RefreshMargin
	if ttl <= 0 {
		return
	}
	c.memo.Set(memoKey, tok, ttl)
}
