package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-events-sync/internal/domain"
	"github.com/gorilla/websocket"
)

// ErrDisconnected is returned by Send while no socket is open.
var ErrDisconnected = errors.New("push: not connected")

// Join is a room the client enters on every connect.
type Join struct {
	Room  string
	Token string
}

type ClientOptions struct {
	URL            string
	Rooms          []Join
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
	Logger         *slog.Logger
}

// Client keeps a socket open to the hub and decodes mutation frames.
type Client struct {
	opts      ClientOptions
	log       *slog.Logger
	connected atomic.Bool

	mu     sync.Mutex
	ws     *websocket.Conn
	subs   map[int]func(domain.ChannelMessage)
	status map[int]func(bool)
	nextID int

	writeMu sync.Mutex
}

func NewClient(opts ClientOptions) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		opts:   opts,
		log:    opts.Logger.With("component", "push-client"),
		subs:   make(map[int]func(domain.ChannelMessage)),
		status: make(map[int]func(bool)),
	}
}

// SocketURL turns an http(s) server URL and a socket path into a ws(s) URL.
func SocketURL(serverURL, path string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String(), nil
}

func (c *Client) Connected() bool { return c.connected.Load() }

// Subscribe registers fn for decoded mutation frames. Frames are delivered
// in arrival order on the read goroutine.
func (c *Client) Subscribe(fn func(domain.ChannelMessage)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// OnStatus registers fn for connection state changes.
func (c *Client) OnStatus(fn func(connected bool)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.status[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.status, id)
		c.mu.Unlock()
	}
}

// Send writes a frame on the current socket.
func (c *Client) Send(name string, data any) error {
	b, err := encodeFrame(name, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrDisconnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, b)
}

// Run connects and reconnects until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("socket session ended", "err", err)
		}
		t := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.setConnected(true)

	done := make(chan struct{})
	defer func() {
		close(done)
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close()
		c.setConnected(false)
	}()
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for _, j := range c.opts.Rooms {
		if err := c.Send(domain.PushJoinPrefix+j.Room, joinRequest{Token: j.Token}); err != nil {
			return fmt.Errorf("join %s: %w", j.Room, err)
		}
	}
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.log.Warn("dropping malformed frame", "err", err)
		return
	}
	switch f.Event {
	case domain.PushEventCreated, domain.PushEventUpdated, domain.PushEventDeleted:
	case FrameError:
		c.log.Warn("hub error", "data", string(f.Data))
		return
	default:
		c.log.Debug("ignoring frame", "event", f.Event)
		return
	}
	m, err := domain.DecodePush(f.Event, f.Data)
	if err != nil {
		c.log.Warn("dropping undecodable frame", "event", f.Event, "err", err)
		return
	}
	c.mu.Lock()
	subs := make([]func(domain.ChannelMessage), 0, len(c.subs))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(m)
	}
}

func (c *Client) setConnected(v bool) {
	if c.connected.Swap(v) == v {
		return
	}
	c.mu.Lock()
	fns := make([]func(bool), 0, len(c.status))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.status[id]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
