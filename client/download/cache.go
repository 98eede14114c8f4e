package download

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// stagingTagLen is the number of trailing URL characters kept in a
// staging file name.
const stagingTagLen = 8

// Cache owns the staging directory and the cache flags read by every
// download call. The zero value is not usable; see [NewCache].
//
// Setters may be called at any time; each download reads the flags once
// when it starts. Clear must not race active downloads.
type Cache struct {
	mu           sync.RWMutex
	dir          string
	staging      bool
	getCache     bool
	deleteOnExit bool
	logger       *slog.Logger
	exit         *exitRegistry

	// inUse holds staging files owned by a running attempt.
	inUse map[string]struct{}
}

// errStagingInUse is returned by Prepare when another attempt owns the path.
var errStagingInUse = errors.New("staging file in use")

// NewCache returns a Cache with staging disabled, the response cache for
// in-memory gets enabled, and delete-on-exit enabled.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		getCache:     true,
		deleteOnExit: true,
		logger:       logger,
		exit:         stagedFiles,
		inUse:        make(map[string]struct{}),
	}
}

// NewStagingCache returns a Cache staging downloads in dir,
// creating the directory if needed.
func NewStagingCache(dir string, logger *slog.Logger) (*Cache, error) {
	c := NewCache(logger)
	if err := c.SetDir(dir); err != nil {
		return nil, err
	}
	if err := c.SetStaging(true); err != nil {
		return nil, err
	}

	return c, nil
}

// SetDir sets the staging directory, creating it if it does not exist.
// An empty dir unsets it, which is only allowed while staging is off.
func (c *Cache) SetDir(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dir == "" {
		if c.staging {
			return fmt.Errorf("%w: cannot unset staging directory while staging is enabled", ErrConfiguration)
		}
		c.dir = ""
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating staging directory %s: %w", ErrConfiguration, dir, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: stat staging directory %s: %w", ErrConfiguration, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: staging path %s is not a directory", ErrConfiguration, dir)
	}

	c.dir = dir
	return nil
}

// Dir returns the staging directory, or "" if unset.
func (c *Cache) Dir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dir
}

// SetStaging turns staged downloads on or off. Enabling staging without
// a directory fails with [ErrConfiguration].
func (c *Cache) SetStaging(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if on && c.dir == "" {
		return fmt.Errorf("%w: staging directory must be set before enabling staging", ErrConfiguration)
	}
	c.staging = on

	return nil
}

// Staging reports whether downloads go through the staging directory.
func (c *Cache) Staging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staging
}

// SetUseGetCache toggles the response cache used by in-memory gets.
func (c *Cache) SetUseGetCache(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getCache = on
}

// UseGetCache reports whether in-memory gets may be served from the response cache.
func (c *Cache) UseGetCache() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getCache
}

// SetDeleteOnExit toggles removal of unfinished staging files when the
// process terminates.
func (c *Cache) SetDeleteOnExit(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteOnExit = on
}

// DeleteOnExit reports whether unfinished staging files are removed on exit.
func (c *Cache) DeleteOnExit() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deleteOnExit
}

// stagingState returns the staging directory if staging is enabled.
func (c *Cache) stagingState() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dir, c.staging
}

// StagingPath returns the staging file path for url. It is a pure
// function of the URL and the configured directory.
func (c *Cache) StagingPath(url string) string {
	return filepath.Join(c.Dir(), StagingName(url))
}

// StagingName derives the staging file name for url:
// <xxhash64 of url>_<tag>.tmp, where tag is the whole URL when it is
// shorter than ten characters and its last eight characters otherwise.
// Characters outside [A-Za-z0-9._-] in the tag are replaced with '_'.
func StagingName(url string) string {
	return stagingName(url, 0)
}

// stagingName returns the n-th staging name for url. Names after the
// first carry the sequence number: <hash>_<tag>.<n>.tmp.
func stagingName(url string, n int) string {
	tag := url
	if len(url) >= 10 {
		tag = url[len(url)-stagingTagLen:]
	}

	if n == 0 {
		return fmt.Sprintf("%016x_%s.tmp", xxhash.Sum64String(url), sanitizeTag(tag))
	}
	return fmt.Sprintf("%016x_%s.%d.tmp", xxhash.Sum64String(url), sanitizeTag(tag), n)
}

func sanitizeTag(tag string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, tag)
}

// Prepare deletes any file at path and creates a fresh, empty one open
// for writing. The path stays reserved until [Cache.Release] or
// [Cache.Promoted] is called; preparing a reserved path fails with
// [ErrFilesystem]. With delete-on-exit enabled the file is also
// registered for removal by [CleanupStaged].
func (c *Cache) Prepare(path string) (*os.File, error) {
	if !c.reserve(path) {
		return nil, fmt.Errorf("%w: %w: %s", ErrFilesystem, errStagingInUse, path)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.unreserve(path)
		return nil, fmt.Errorf("%w: removing stale staging file: %w", ErrFilesystem, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		c.unreserve(path)
		return nil, fmt.Errorf("%w: creating staging file: %w", ErrFilesystem, err)
	}

	if c.DeleteOnExit() {
		c.exit.add(path)
	}
	c.logger.Debug("staging file prepared", "path", path)

	return file, nil
}

// stage prepares a staging file for url in dir. An attempt gets the
// plain staging name unless another running attempt holds it, in which
// case the next free numbered name is used.
func (c *Cache) stage(dir, url string) (string, *os.File, error) {
	for n := 0; ; n++ {
		path := filepath.Join(dir, stagingName(url, n))

		file, err := c.Prepare(path)
		if errors.Is(err, errStagingInUse) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		if n > 0 {
			c.logger.Debug("staging name taken, using numbered name", "url", url, "path", path)
		}

		return path, file, nil
	}
}

func (c *Cache) reserve(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.inUse[path]; ok {
		return false
	}
	c.inUse[path] = struct{}{}

	return true
}

func (c *Cache) unreserve(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inUse, path)
}

// Release deletes an unpromoted staging file and forgets it.
func (c *Cache) Release(path string) {
	c.exit.remove(path)

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Error("failed to remove staging file", "path", path, "error", err)
	}
	c.unreserve(path)
}

// Promoted forgets a staging file that was renamed into its destination.
func (c *Cache) Promoted(path string) {
	c.exit.remove(path)
	c.unreserve(path)
}

// Clear deletes and recreates the staging directory. It must not be
// called while downloads are running.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" {
		return fmt.Errorf("%w: no staging directory configured", ErrConfiguration)
	}

	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("%w: removing staging directory: %w", ErrFilesystem, err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("%w: recreating staging directory: %w", ErrFilesystem, err)
	}

	return nil
}
