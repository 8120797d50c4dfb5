package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-events-sync/internal/domain"
	"github.com/go-events-sync/internal/infrastructure/api"
	"github.com/go-events-sync/internal/pkg/validate"
)

// maxImport bounds the number of events accepted by one import request.
const maxImport = 500

// EventService is the subset of the events use-case the handler drives.
type EventService interface {
	List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
	Get(ctx context.Context, eventID string) (*domain.Event, error)
	Create(ctx context.Context, input domain.EventInput, origin string) (*domain.Event, error)
	Update(ctx context.Context, eventID string, input domain.EventInput, origin string) (*domain.Event, error)
	Delete(ctx context.Context, eventID, origin string) (*domain.Tombstone, error)
	Import(ctx context.Context, inputs []domain.EventInput, origin string) (*domain.ImportResult, error)
}

// EventHandler handles the /api/events endpoints.
type EventHandler struct {
	svc EventService
}

func NewEventHandler(svc EventService) *EventHandler { return &EventHandler{svc: svc} }

// origin is the id of the page that issued the request, empty when the
// caller did not identify itself.
func origin(r *http.Request) string {
	return r.Header.Get(api.HeaderClientID)
}

func parseFilter(r *http.Request) (domain.EventFilter, error) {
	q := r.URL.Query()
	f := domain.EventFilter{Category: q.Get("category"), Query: q.Get("q")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := q.Get("upcoming"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid upcoming %q", v)
		}
		f.Upcoming = b
	}
	return f, nil
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.svc.List(r.Context(), f)
	if err != nil {
		httpError(w, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input domain.EventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(input); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	created, err := h.svc.Create(r.Context(), input, origin(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input domain.EventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(input); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	updated, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), input, origin(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete answers with the tombstone so clients can order the removal
// against later updates.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ts, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), origin(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *EventHandler) Import(w http.ResponseWriter, r *http.Request) {
	var inputs []domain.EventInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(inputs) == 0 {
		writeError(w, http.StatusBadRequest, "no events to import")
		return
	}
	if len(inputs) > maxImport {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d events per import", maxImport))
		return
	}
	for i, in := range inputs {
		if err := validate.Struct(in); err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("event %d: %v", i, err))
			return
		}
	}
	res, err := h.svc.Import(r.Context(), inputs, origin(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
