package telemetry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientBufferSize = 16
	writeTimeout     = time.Second
)

// ErrBroadcasterClosed is returned by Publish after Close.
var ErrBroadcasterClosed = errors.New("broadcaster closed")

// WithLogger sets the logger for the Broadcaster
func WithLogger(logger *slog.Logger) func(*Broadcaster) {
	return func(b *Broadcaster) {
		b.logger = logger.With(slog.String("component", "telemetry"))
	}
}

// WithClientBuffer sets the number of snapshots queued per client before
// snapshots are dropped for it
func WithClientBuffer(size int) func(*Broadcaster) {
	return func(b *Broadcaster) {
		b.bufferSize = size
	}
}

// WithWriteTimeout sets the websocket write deadline
func WithWriteTimeout(timeout time.Duration) func(*Broadcaster) {
	return func(b *Broadcaster) {
		b.writeTimeout = timeout
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Broadcaster streams telemetry snapshots as JSON text messages to every
// connected websocket client. Publish never blocks on a slow client.
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	latest  Latest
	dropped atomic.Uint64

	bufferSize   int
	writeTimeout time.Duration

	logger *slog.Logger
}

func NewBroadcaster(options ...func(*Broadcaster)) *Broadcaster {
	b := Broadcaster{
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:      make(map[*client]struct{}),
		bufferSize:   clientBufferSize,
		writeTimeout: writeTimeout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&b)
	}

	return &b
}

// ServeHTTP upgrades the request to a websocket and registers the client.
// The latest snapshot, if any, is sent first.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("failed to upgrade connection", slog.String("error", err.Error()))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, b.bufferSize)}

	if t := b.latest.Get(); t != nil {
		if msg, err := json.Marshal(t); err == nil {
			select {
			case c.send <- msg:
			default:
			}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	b.logger.Info("client connected", slog.String("remote", r.RemoteAddr))

	go b.writeLoop(c)
	go b.readLoop(c)
}

// Publish queues the snapshot for every client.
func (b *Broadcaster) Publish(t *Telemetry) error {
	msg, err := json.Marshal(t)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBroadcasterClosed
	}

	b.latest.Set(t)

	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			b.dropped.Add(1)
		}
	}

	return nil
}

// Get returns the last published snapshot.
func (b *Broadcaster) Get() *Telemetry {
	return b.latest.Get()
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Dropped returns the number of snapshots dropped for slow clients.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close disconnects every client. Later Publish calls fail.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for c := range b.clients {
		b.removeLocked(c)
	}

	return nil
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(c)
}

func (b *Broadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	close(c.send)
}

func (b *Broadcaster) writeLoop(c *client) {
	defer func() {
		if err := c.conn.Close(); err != nil {
			b.logger.Debug("failed to close websocket", slog.String("error", err.Error()))
		}
	}()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.logger.Debug("failed to write snapshot", slog.String("error", err.Error()))
			b.remove(c)
			break
		}
	}

	// drain so that a concurrent Publish never blocks on a removed client
	for range c.send {
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(b.writeTimeout))
}

func (b *Broadcaster) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	b.remove(c)
}
