package telemetry

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, b *Broadcaster, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for b.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, b.Clients())
		}
		time.Sleep(time.Millisecond)
	}
}

func readTelemetry(t *testing.T, conn *websocket.Conn) Telemetry {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	var got Telemetry
	if err = json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("Failed to decode telemetry: %v", err)
	}
	return got
}

func TestBroadcasterPublish(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(b)
	defer srv.Close()
	defer b.Close()

	first, second := dial(t, srv), dial(t, srv)
	waitClients(t, b, 2)

	sent := &Telemetry{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Tick:      42,
		Mode:      phenox.ModeHover,
		State:     phenox.SelfState{Height: 150, VisionTX: 3, VisionTY: 4},
	}
	if err := b.Publish(sent); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	for _, conn := range []*websocket.Conn{first, second} {
		got := readTelemetry(t, conn)
		if got.Tick != 42 || got.Mode != phenox.ModeHover || got.State.Height != 150 {
			t.Errorf("Expected tick 42 in hover at 150, got %+v", got)
		}
		if !got.Timestamp.Equal(sent.Timestamp) {
			t.Errorf("Expected timestamp %s, got %s", sent.Timestamp, got.Timestamp)
		}
	}
}

func TestBroadcasterSendsLatestOnConnect(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(b)
	defer srv.Close()
	defer b.Close()

	if err := b.Publish(&Telemetry{Tick: 7}); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	conn := dial(t, srv)
	if got := readTelemetry(t, conn); got.Tick != 7 {
		t.Errorf("Expected tick 7, got %d", got.Tick)
	}
	if b.Get() == nil || b.Get().Tick != 7 {
		t.Errorf("Expected latest tick 7, got %+v", b.Get())
	}
}

func TestBroadcasterClientDisconnect(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(b)
	defer srv.Close()
	defer b.Close()

	conn := dial(t, srv)
	waitClients(t, b, 1)

	_ = conn.Close()
	waitClients(t, b, 0)

	if err := b.Publish(&Telemetry{Tick: 1}); err != nil {
		t.Fatalf("Failed to publish without clients: %v", err)
	}
}

func TestBroadcasterDropsForSlowClient(t *testing.T) {
	b := NewBroadcaster(WithClientBuffer(1))

	// a registered client without a writer never drains its queue
	c := &client{send: make(chan []byte, 1)}
	b.clients[c] = struct{}{}

	for i := range 3 {
		if err := b.Publish(&Telemetry{Tick: uint64(i)}); err != nil {
			t.Fatalf("Failed to publish: %v", err)
		}
	}

	if b.Dropped() != 2 {
		t.Errorf("Expected 2 dropped snapshots, got %d", b.Dropped())
	}
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn := dial(t, srv)
	waitClients(t, b, 1)

	if err := b.Close(); err != nil {
		t.Fatalf("Failed to close broadcaster: %v", err)
	}
	if b.Clients() != 0 {
		t.Errorf("Expected no clients after close, got %d", b.Clients())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected the connection to be closed")
	}

	if err := b.Publish(&Telemetry{}); !errors.Is(err, ErrBroadcasterClosed) {
		t.Errorf("Expected ErrBroadcasterClosed, got %v", err)
	}
}

func TestLatest(t *testing.T) {
	var l Latest
	if l.Get() != nil {
		t.Fatal("Expected no snapshot")
	}

	l.Set(&Telemetry{Tick: 3})
	if got := l.Get(); got == nil || got.Tick != 3 {
		t.Errorf("Expected tick 3, got %+v", got)
	}
}
