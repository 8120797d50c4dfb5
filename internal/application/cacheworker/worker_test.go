package cacheworker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-events-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const origin = "http://events.test"

// --- fakes ---

type memStore struct {
	mu     sync.Mutex
	caches map[string]map[string]domain.CacheEntry
	putErr error
}

func newMemStore() *memStore {
	return &memStore{caches: make(map[string]map[string]domain.CacheEntry)}
}

func (s *memStore) Caches(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for n := range s.caches {
		names = append(names, n)
	}
	return names, nil
}

func (s *memStore) DeleteCache(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.caches, name)
	return nil
}

func (s *memStore) Put(_ context.Context, cacheName string, e *domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if s.caches[cacheName] == nil {
		s.caches[cacheName] = make(map[string]domain.CacheEntry)
	}
	s.caches[cacheName][e.Key()] = *e
	return nil
}

func (s *memStore) Match(_ context.Context, cacheName, method, url string) (*domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.caches[cacheName][domain.CacheKey(method, url)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (s *memStore) body(cacheName, url string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.caches[cacheName][domain.CacheKey(http.MethodGet, url)].Body)
}

type route struct {
	status int
	body   string
	err    error
	delay  time.Duration
}

type fakeNetwork struct {
	mu     sync.Mutex
	routes map[string]route
	down   bool
	calls  map[string]int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{routes: make(map[string]route), calls: make(map[string]int)}
}

func (n *fakeNetwork) set(path string, status int, body string) {
	n.mu.Lock()
	n.routes[path] = route{status: status, body: body}
	n.mu.Unlock()
}

func (n *fakeNetwork) setRoute(path string, r route) {
	n.mu.Lock()
	n.routes[path] = r
	n.mu.Unlock()
}

func (n *fakeNetwork) offline(v bool) {
	n.mu.Lock()
	n.down = v
	n.mu.Unlock()
}

func (n *fakeNetwork) count(path string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[path]
}

func (n *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	n.calls[req.URL.Path]++
	r, ok := n.routes[req.URL.Path]
	down := n.down
	n.mu.Unlock()
	if down {
		return nil, errors.New("dial tcp: connection refused")
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if !ok {
		r = route{status: http.StatusNotFound, body: "not found"}
	}
	return &http.Response{
		StatusCode: r.status,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
		Request:    req,
	}, nil
}

func shellNetwork() *fakeNetwork {
	n := newFakeNetwork()
	n.set("/", http.StatusOK, "<html>home</html>")
	n.set("/offline", http.StatusOK, "<html>offline</html>")
	n.set("/api/events", http.StatusOK, `[{"id":"e1","revision":1}]`)
	n.set("/favicon.ico", http.StatusOK, "icon")
	return n
}

func newTestWorker(t *testing.T, store Storage, net http.RoundTripper, opts Options) *Worker {
	t.Helper()
	w, err := New(DefaultConfig(origin), store, net, opts)
	require.NoError(t, err)
	return w
}

func activeWorker(t *testing.T, store Storage, net http.RoundTripper) *Worker {
	t.Helper()
	w := newTestWorker(t, store, net, Options{})
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))
	return w
}

func get(t *testing.T, rt http.RoundTripper, path string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, origin+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

// --- lifecycle ---

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{Version: "v1", Origin: "not a url"}, newMemStore(), nil, Options{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	_, err = New(Config{Origin: origin}, newMemStore(), nil, Options{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestInstall_PrecachesShell(t *testing.T) {
	store := newMemStore()
	w := newTestWorker(t, store, shellNetwork(), Options{})
	require.NoError(t, w.Install(context.Background()))

	assert.Equal(t, Waiting, w.State())
	assert.Equal(t, "<html>offline</html>", store.body("events-app-v1", origin+"/offline"))
	assert.Equal(t, "icon", store.body("events-app-v1", origin+"/favicon.ico"))
}

func TestInstall_AnyFailureMakesWorkerRedundant(t *testing.T) {
	net := shellNetwork()
	net.set("/favicon.ico", http.StatusInternalServerError, "boom")
	w := newTestWorker(t, newMemStore(), net, Options{})

	err := w.Install(context.Background())
	require.Error(t, err)
	assert.Equal(t, Redundant, w.State())
	assert.ErrorIs(t, w.Activate(context.Background()), domain.ErrConflict)
}

func TestActivate_DeletesOtherVersions(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), "events-app-v0", &domain.CacheEntry{Method: "GET", URL: origin + "/"}))
	w := activeWorker(t, store, shellNetwork())

	assert.Equal(t, Active, w.State())
	names, _ := store.Caches(context.Background())
	assert.Equal(t, []string{"events-app-v1"}, names)
}

// --- fetch handling ---

func TestDataRequest_NetworkFirstStoresSuccess(t *testing.T) {
	store := newMemStore()
	net := shellNetwork()
	w := activeWorker(t, store, net)

	net.set("/api/events", http.StatusOK, `[{"id":"e2","revision":1}]`)
	resp, body := get(t, w, "/api/events", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get(HeaderCache))
	assert.Equal(t, `[{"id":"e2","revision":1}]`, body)
	assert.Equal(t, body, store.body("events-app-v1", origin+"/api/events"))
}

func TestDataRequest_FallsBackToCacheWhenOffline(t *testing.T) {
	net := shellNetwork()
	w := activeWorker(t, newMemStore(), net)
	net.offline(true)

	resp, body := get(t, w, "/api/events", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCache))
	assert.Equal(t, `[{"id":"e1","revision":1}]`, body)
}

func TestDataRequest_GatewayFailureCountsAsOffline(t *testing.T) {
	net := shellNetwork()
	w := activeWorker(t, newMemStore(), net)
	net.set("/api/events", http.StatusServiceUnavailable, "down")

	resp, body := get(t, w, "/api/events", nil)
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCache))
	assert.Equal(t, `[{"id":"e1","revision":1}]`, body)
}

func TestDataRequest_NonGatewayErrorIsPassedThrough(t *testing.T) {
	net := shellNetwork()
	w := activeWorker(t, newMemStore(), net)

	resp, _ := get(t, w, "/api/events/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get(HeaderCache))
}

func TestDataRequest_EmptyFallbackWithoutCacheEntry(t *testing.T) {
	net := shellNetwork()
	w := activeWorker(t, newMemStore(), net)
	net.offline(true)

	resp, body := get(t, w, "/api/categories", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", body)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "empty", resp.Header.Get(HeaderCacheFallback))
}

func TestDataRequest_FilteredListFallsBackToCachedList(t *testing.T) {
	net := shellNetwork()
	w := activeWorker(t, newMemStore(), net)
	net.offline(true)

	for _, path := range []string{"/api/events?upcoming=true", "/api/events?category=music&limit=5"} {
		resp, body := get(t, w, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "HIT", resp.Header.Get(HeaderCache), path)
		assert.Equal(t, "list", resp.Header.Get(HeaderCacheFallback), path)
		assert.Equal(t, `[{"id":"e1","revision":1}]`, body, path)
	}
}

func TestDataRequest_EmptyFallbackWhenListNotCached(t *testing.T) {
	net := shellNetwork()
	w := newTestWorker(t, newMemStore(), net, Options{})
	require.NoError(t, w.transition(Parsed, Waiting))
	require.NoError(t, w.Activate(context.Background()))
	net.offline(true)

	resp, body := get(t, w, "/api/events?upcoming=true", nil)
	assert.Equal(t, "[]", body)
	assert.Equal(t, "empty", resp.Header.Get(HeaderCacheFallback))
}

func TestDataRequest_TimeoutFallsBack(t *testing.T) {
	net := shellNetwork()
	store := newMemStore()
	cfg := DefaultConfig(origin)
	cfg.NetworkTimeout = 20 * time.Millisecond
	w, err := New(cfg, store, net, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))

	net.setRoute("/api/events", route{status: http.StatusOK, body: "late", delay: time.Second})
	start := time.Now()
	resp, body := get(t, w, "/api/events", nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCache))
	assert.Equal(t, `[{"id":"e1","revision":1}]`, body)
}

func TestStatic_StaleWhileRevalidate(t *testing.T) {
	store := newMemStore()
	net := shellNetwork()
	w := activeWorker(t, store, net)
	net.set("/", http.StatusOK, "<html>home v2</html>")

	resp, body := get(t, w, "/", nil)
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCache))
	assert.Equal(t, "<html>home</html>", body)

	w.Settle()
	assert.Equal(t, "<html>home v2</html>", store.body("events-app-v1", origin+"/"))

	_, body = get(t, w, "/", nil)
	assert.Equal(t, "<html>home v2</html>", body)
	w.Settle()
}

func TestStatic_MissGoesToNetworkAndStores(t *testing.T) {
	store := newMemStore()
	net := shellNetwork()
	w := activeWorker(t, store, net)
	net.set("/assets/app.js", http.StatusOK, "js")

	resp, body := get(t, w, "/assets/app.js", nil)
	assert.Equal(t, "MISS", resp.Header.Get(HeaderCache))
	assert.Equal(t, "js", body)
	assert.Equal(t, "js", store.body("events-app-v1", origin+"/assets/app.js"))
}

func TestStatic_OfflineNavigationGetsOfflinePage(t *testing.T) {
	net := shellNetwork()
	w := activeWorker(t, newMemStore(), net)
	net.offline(true)

	resp, body := get(t, w, "/events/e1", http.Header{"Sec-Fetch-Mode": []string{"navigate"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>offline</html>", body)

	resp, body = get(t, w, "/about", http.Header{"Accept": []string{"text/html,application/xhtml+xml"}})
	assert.Equal(t, "<html>offline</html>", body)
}

func TestStatic_OfflineSubresourceIsNetworkError(t *testing.T) {
	net := shellNetwork()
	w := activeWorker(t, newMemStore(), net)
	net.offline(true)

	resp, body := get(t, w, "/assets/app.css", nil)
	assert.Equal(t, http.StatusRequestTimeout, resp.StatusCode)
	assert.Equal(t, "Network error", body)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}

func TestNonGetPassesThrough(t *testing.T) {
	net := shellNetwork()
	w := activeWorker(t, newMemStore(), net)
	net.offline(true)

	req, _ := http.NewRequest(http.MethodPost, origin+"/api/events", nil)
	_, err := w.RoundTrip(req)
	assert.Error(t, err)
}

func TestCacheWriteFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	net := shellNetwork()
	w := activeWorker(t, store, net)
	store.putErr = errors.New("disk full")
	net.set("/assets/app.js", http.StatusOK, "js")

	resp, body := get(t, w, "/assets/app.js", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "js", body)
}

// --- registration ---

func TestRegistration_ControllerChange(t *testing.T) {
	store := newMemStore()
	net := shellNetwork()
	reg := NewRegistration(net, nil)

	reloads := 0
	reg.OnControllerChange(ReloadOnce(func() { reloads++ }))

	resp, _ := get(t, reg, "/", nil)
	assert.Empty(t, resp.Header.Get(HeaderCache))

	v1 := newTestWorker(t, store, net, Options{})
	require.NoError(t, reg.Register(context.Background(), v1))
	assert.Same(t, v1, reg.Controller())

	cfg := DefaultConfig(origin)
	cfg.Version = "events-app-v2"
	v2, err := New(cfg, store, net, Options{})
	require.NoError(t, err)
	require.NoError(t, reg.Register(context.Background(), v2))

	assert.Same(t, v2, reg.Controller())
	assert.Equal(t, Redundant, v1.State())
	assert.Equal(t, 1, reloads)

	resp, _ = get(t, reg, "/", nil)
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCache))
	names, _ := store.Caches(context.Background())
	assert.Equal(t, []string{"events-app-v2"}, names)
	v2.Settle()
}

func TestRegistration_FailedInstallKeepsController(t *testing.T) {
	store := newMemStore()
	net := shellNetwork()
	reg := NewRegistration(net, nil)
	v1 := newTestWorker(t, store, net, Options{})
	require.NoError(t, reg.Register(context.Background(), v1))

	net.offline(true)
	cfg := DefaultConfig(origin)
	cfg.Version = "events-app-v2"
	v2, err := New(cfg, store, net, Options{})
	require.NoError(t, err)
	assert.Error(t, reg.Register(context.Background(), v2))

	assert.Same(t, v1, reg.Controller())
	assert.Equal(t, Active, v1.State())
}

func TestRegistration_ResumeUsesInstalledCache(t *testing.T) {
	store := newMemStore()
	net := shellNetwork()
	first := NewRegistration(net, nil)
	require.NoError(t, first.Register(context.Background(), newTestWorker(t, store, net, Options{})))

	// a later run starts offline with the same profile
	net.offline(true)
	reg := NewRegistration(net, nil)
	w := newTestWorker(t, store, net, Options{})
	ok, err := reg.Resume(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Active, w.State())
	assert.Same(t, w, reg.Controller())

	resp, body := get(t, reg, "/api/events", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCache))
	assert.NotEmpty(t, body)
}

func TestRegistration_ResumeWithoutCache(t *testing.T) {
	reg := NewRegistration(shellNetwork(), nil)
	w := newTestWorker(t, newMemStore(), shellNetwork(), Options{})
	ok, err := reg.Resume(context.Background(), w)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Parsed, w.State())
	assert.Nil(t, reg.Controller())
}

// --- push ---

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Show(ctx context.Context, p domain.PushPayload) error {
	return m.Called(ctx, p).Error(0)
}

type mockClients struct{ mock.Mock }

func (m *mockClients) Windows(ctx context.Context) ([]Window, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Window), args.Error(1)
}
func (m *mockClients) Focus(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockClients) OpenWindow(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func TestPush_ShowsWithDefaults(t *testing.T) {
	n := new(mockNotifier)
	n.On("Show", mock.Anything, domain.PushPayload{
		Title: "Event updated", Body: domain.DefaultPushBody, Icon: domain.DefaultPushIcon, URL: "/events/e1",
	}).Return(nil)
	w := newTestWorker(t, newMemStore(), shellNetwork(), Options{Notifier: n})

	require.NoError(t, w.Push(context.Background(), []byte(`{"title":"Event updated","url":"/events/e1"}`)))
	require.NoError(t, w.Push(context.Background(), nil))
	assert.ErrorIs(t, w.Push(context.Background(), []byte("{")), domain.ErrBadRequest)
	n.AssertNumberOfCalls(t, "Show", 1)
}

func TestNotificationClick_FocusesExistingWindow(t *testing.T) {
	c := new(mockClients)
	c.On("Windows", mock.Anything).Return([]Window{{ID: "w1", URL: origin + "/"}, {ID: "w2", URL: "/events/e1"}}, nil)
	c.On("Focus", mock.Anything, "w2").Return(nil)
	w := newTestWorker(t, newMemStore(), shellNetwork(), Options{Clients: c})

	require.NoError(t, w.NotificationClick(context.Background(), domain.PushPayload{URL: "/events/e1"}))
	c.AssertExpectations(t)
	c.AssertNotCalled(t, "OpenWindow", mock.Anything, mock.Anything)
}

func TestNotificationClick_OpensNewWindow(t *testing.T) {
	c := new(mockClients)
	c.On("Windows", mock.Anything).Return([]Window{{ID: "w1", URL: origin + "/events/e9"}}, nil)
	c.On("OpenWindow", mock.Anything, origin+"/").Return(nil)
	w := newTestWorker(t, newMemStore(), shellNetwork(), Options{Clients: c})

	require.NoError(t, w.NotificationClick(context.Background(), domain.PushPayload{}))
	c.AssertExpectations(t)
}
