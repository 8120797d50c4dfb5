package domain

import (
	"net/http"
	"time"
)

// CacheEntry is the last-known-good response for one request identity.
type CacheEntry struct {
	Method   string
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Key is the request identity the entry is stored under.
func (e *CacheEntry) Key() string { return CacheKey(e.Method, e.URL) }

// CacheKey builds a request identity from method and absolute URL.
func CacheKey(method, url string) string { return method + " " + url }
