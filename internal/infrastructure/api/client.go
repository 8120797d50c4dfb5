package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-events-sync/internal/domain"
)

// HeaderClientID carries the id of the page that issued a mutation so the
// server can stamp it on the push fan-out.
const HeaderClientID = "X-Client-ID"

type Options struct {
	BaseURL string
	// Token is an optional bearer token for the mutating endpoints.
	Token string
	// Origin is sent as HeaderClientID on every request.
	Origin    string
	Transport http.RoundTripper
	Timeout   time.Duration
}

// Client talks to the events HTTP API.
type Client struct {
	baseURL    string
	token      string
	origin     string
	httpClient *http.Client
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		origin:  opts.Origin,
		httpClient: &http.Client{
			Transport: opts.Transport,
			Timeout:   opts.Timeout,
		},
	}
}

func (c *Client) GetEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Upcoming {
		q.Set("upcoming", "true")
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	path := "/api/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	events := []domain.Event{}
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEvent returns nil, nil when the event does not exist or when the
// cache answered an offline request with a list instead of the entity.
func (c *Client) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	path := "/api/events/" + url.PathEscape(id)
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, path, nil, &raw)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil
	}
	var e domain.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decoding response of GET %s: %w", path, err)
	}
	return &e, nil
}

func (c *Client) Create(ctx context.Context, in domain.EventInput) (*domain.Event, error) {
	var e domain.Event
	if err := c.do(ctx, http.MethodPost, "/api/events", in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) Update(ctx context.Context, id string, in domain.EventInput) (*domain.Event, error) {
	var e domain.Event
	if err := c.do(ctx, http.MethodPut, "/api/events/"+url.PathEscape(id), in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) Delete(ctx context.Context, id string) (*domain.Tombstone, error) {
	var ts domain.Tombstone
	if err := c.do(ctx, http.MethodDelete, "/api/events/"+url.PathEscape(id), nil, &ts); err != nil {
		return nil, err
	}
	return &ts, nil
}

func (c *Client) Import(ctx context.Context, in []domain.EventInput) (*domain.ImportResult, error) {
	var res domain.ImportResult
	if err := c.do(ctx, http.MethodPost, "/api/events/import", in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.origin != "" {
		req.Header.Set(HeaderClientID, c.origin)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &eb) == nil && (eb.Error != "" || eb.Message != "") {
			msg = eb.Error
			if msg == "" {
				msg = eb.Message
			}
		}
		return fmt.Errorf("%s %s: %s: %w", method, path, msg, statusError(resp.StatusCode))
	}
	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response of %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(code int) error {
	switch code {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrBadRequest
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, domain.ErrNotFound)
}
