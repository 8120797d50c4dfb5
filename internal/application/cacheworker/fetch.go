package cacheworker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-events-sync/internal/domain"
)

// Response headers set by the worker.
const (
	HeaderCache         = "X-Cache"
	HeaderCacheFallback = "X-Cache-Fallback"
)

// RoundTrip answers data requests network-first and everything else
// stale-while-revalidate. Requests it does not handle go to the network
// untouched.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || (req.URL.Scheme != "http" && req.URL.Scheme != "https") {
		return w.next.RoundTrip(req)
	}
	if strings.HasPrefix(req.URL.Path, w.cfg.DataPrefix) {
		return w.networkFirst(req), nil
	}
	return w.staleWhileRevalidate(req), nil
}

func (w *Worker) networkFirst(req *http.Request) *http.Response {
	e, err := w.fetch(req, w.cfg.NetworkTimeout)
	if err == nil && !isGatewayFailure(e.Status) {
		if isOK(e.Status) {
			w.put(req.Context(), e)
		}
		return respond(req, e, "MISS")
	}
	if err != nil {
		w.log.Debug("network failed, trying cache", "url", req.URL.String(), "err", err)
	}
	if cached := w.match(req.Context(), req.Method, req.URL.String()); cached != nil {
		return respond(req, cached, "HIT")
	}
	if w.cfg.ListURL != "" && req.URL.Path == w.cfg.ListURL {
		if list := w.match(req.Context(), http.MethodGet, w.resolve(w.cfg.ListURL)); list != nil {
			resp := respond(req, list, "HIT")
			resp.Header.Set(HeaderCacheFallback, "list")
			return resp
		}
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set(HeaderCacheFallback, "empty")
	return respond(req, &domain.CacheEntry{Status: http.StatusOK, Header: h, Body: []byte("[]")}, "MISS")
}

func (w *Worker) staleWhileRevalidate(req *http.Request) *http.Response {
	if cached := w.match(req.Context(), req.Method, req.URL.String()); cached != nil {
		w.revalidate(req)
		return respond(req, cached, "HIT")
	}
	e, err := w.fetch(req, 0)
	if err == nil {
		if isOK(e.Status) {
			w.put(req.Context(), e)
		}
		return respond(req, e, "MISS")
	}
	w.log.Debug("network failed", "url", req.URL.String(), "err", err)
	if isNavigation(req) && w.cfg.OfflineURL != "" {
		if off := w.match(req.Context(), http.MethodGet, w.resolve(w.cfg.OfflineURL)); off != nil {
			return respond(req, off, "HIT")
		}
	}
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	return respond(req, &domain.CacheEntry{Status: http.StatusRequestTimeout, Header: h, Body: []byte("Network error")}, "MISS")
}

func (w *Worker) revalidate(req *http.Request) {
	bgReq := req.Clone(context.WithoutCancel(req.Context()))
	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		e, err := w.fetch(bgReq, 0)
		if err != nil {
			w.log.Debug("revalidation failed", "url", bgReq.URL.String(), "err", err)
			return
		}
		if isOK(e.Status) {
			w.put(bgReq.Context(), e)
		}
	}()
}

// fetch performs req on the network and buffers the whole response.
func (w *Worker) fetch(req *http.Request, timeout time.Duration) (*domain.CacheEntry, error) {
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}
	resp, err := w.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}
	return &domain.CacheEntry{
		Method:   req.Method,
		URL:      req.URL.String(),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}, nil
}

func (w *Worker) put(ctx context.Context, e *domain.CacheEntry) {
	if err := w.store.Put(context.WithoutCancel(ctx), w.cfg.Version, e); err != nil {
		w.log.Warn("cache write failed", "key", e.Key(), "err", err)
	}
}

func (w *Worker) match(ctx context.Context, method, url string) *domain.CacheEntry {
	e, err := w.store.Match(context.WithoutCancel(ctx), w.cfg.Version, method, url)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.log.Warn("cache read failed", "key", domain.CacheKey(method, url), "err", err)
		}
		return nil
	}
	return e
}

func respond(req *http.Request, e *domain.CacheEntry, cache string) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(HeaderCache, cache)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func isOK(status int) bool { return status >= 200 && status < 300 }

func isGatewayFailure(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
