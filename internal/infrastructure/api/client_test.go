package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-events-sync/internal/application/cacheworker"
	"github.com/go-events-sync/internal/domain"
	"github.com/go-events-sync/internal/infrastructure/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", Token: "tok", Origin: "page-a"})
}

func TestGetEvents_EncodesFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "true", r.URL.Query().Get("upcoming"))
		assert.Equal(t, "music", r.URL.Query().Get("category"))
		assert.Equal(t, "jazz", r.URL.Query().Get("q"))
		assert.Equal(t, "page-a", r.Header.Get(HeaderClientID))
		_, _ = w.Write([]byte(`[{"id":"e1","revision":2,"title":{"en":"Jazz night"}}]`))
	})

	events, err := c.GetEvents(context.Background(), domain.EventFilter{Limit: 5, Upcoming: true, Category: "music", Query: "jazz"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].EventID)
	assert.Equal(t, int64(2), events[0].Revision)
}

func TestGetEvents_EmptyFallbackBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	events, err := c.GetEvents(context.Background(), domain.EventFilter{})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestGetEvent_NotFoundIsNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"event not found"}`))
	})
	e, err := c.GetEvent(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, e)
}

func TestGetEvent_Found(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events/e1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"e1","revision":3,"title":{"en":"Talk"}}`))
	})
	e, err := c.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "e1", e.EventID)
	assert.Equal(t, int64(3), e.Revision)
}

func TestGetEvent_OfflineListFallbackIsNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache-Fallback", "empty")
		_, _ = w.Write([]byte(" []"))
	})
	e, err := c.GetEvent(context.Background(), "e1")
	assert.NoError(t, err)
	assert.Nil(t, e)
}

type deadTransport struct{}

func (deadTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestGetEvent_ThroughOfflineWorker(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	w, err := cacheworker.New(cacheworker.DefaultConfig("http://events.test"), store, deadTransport{}, cacheworker.Options{})
	require.NoError(t, err)
	c := NewClient(Options{BaseURL: "http://events.test", Transport: w})
	e, err := c.GetEvent(context.Background(), "e1")
	assert.NoError(t, err)
	assert.Nil(t, e)
}

func TestCreate_SendsBearerAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var in domain.EventInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Talk", in.Title.EN)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.Event{EventID: "e1", Revision: 1, Title: in.Title})
	})
	e, err := c.Create(context.Background(), domain.EventInput{Title: domain.LocalizedText{EN: "Talk"}})
	require.NoError(t, err)
	assert.Equal(t, "e1", e.EventID)
}

func TestDelete_ReturnsTombstone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events/e1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"e1","revision":4}`))
	})
	ts, err := c.Delete(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, &domain.Tombstone{EventID: "e1", Revision: 4}, ts)
}

func TestErrorsMapToSentinels(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized: domain.ErrUnauthorized,
		http.StatusForbidden:    domain.ErrForbidden,
		http.StatusBadRequest:   domain.ErrBadRequest,
		http.StatusNotFound:     domain.ErrNotFound,
	}
	for code, want := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		})
		_, err := c.Update(context.Background(), "e1", domain.EventInput{})
		assert.ErrorIs(t, err, want, "status %d", code)
		assert.Contains(t, err.Error(), "nope")
	}
}
