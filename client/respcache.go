package client

import (
	"bytes"
	"net/http"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

// cachedResponse is a get response body kept for revalidation.
type cachedResponse struct {
	body         []byte
	etag         string
	lastModified string
}

// newCachedResponse returns nil when the response carries no validator
// or must not be stored.
func newCachedResponse(h http.Header, body []byte) *cachedResponse {
	if strings.Contains(strings.ToLower(h.Get("Cache-Control")), "no-store") {
		return nil
	}

	entry := &cachedResponse{
		etag:         h.Get("ETag"),
		lastModified: h.Get("Last-Modified"),
	}
	if entry.etag == "" && entry.lastModified == "" {
		return nil
	}
	entry.body = bytes.Clone(body)

	return entry
}

// conditional returns a copy of h carrying the entry's validators.
func (e *cachedResponse) conditional(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header, 2)
	}
	if e.etag != "" {
		out.Set("If-None-Match", e.etag)
	}
	if e.lastModified != "" {
		out.Set("If-Modified-Since", e.lastModified)
	}

	return out
}

// responseCache is a bounded LRU of get responses keyed by URL.
type responseCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newResponseCache(size int) *responseCache {
	return &responseCache{cache: lru.New(size)}
}

func (rc *responseCache) get(url string) (*cachedResponse, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	v, ok := rc.cache.Get(url)
	if !ok {
		return nil, false
	}

	return v.(*cachedResponse), true
}

func (rc *responseCache) add(url string, entry *cachedResponse) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.cache.Add(url, entry)
}

func (rc *responseCache) remove(url string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.cache.Remove(url)
}

func (rc *responseCache) size() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.cache.Len()
}
