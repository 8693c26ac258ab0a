package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastReachesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = hub.Stop(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	sent, err := hub.Broadcast(ctx, "🔔 alert")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 recipient, got %d", sent)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "🔔 alert" {
		t.Fatalf("unexpected message %q", msg)
	}
}

// addClient registers a connection-less client straight into the hub so
// concurrency tests can drive Broadcast and drop without real sockets.
func addClient(hub *Hub) *client {
	c := &client{send: make(chan []byte, sendBuffer)}
	hub.mu.Lock()
	hub.clients[c] = struct{}{}
	hub.mu.Unlock()
	return c
}

func TestBroadcastDuringDisconnect(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = hub.Stop(ctx) }()

	for i := 0; i < 50; i++ {
		clients := make([]*client, 200)
		for j := range clients {
			clients[j] = addClient(hub)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				if _, err := hub.Broadcast(ctx, "🔔 alert"); err != nil {
					t.Errorf("broadcast: %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for _, c := range clients {
				hub.drop(c)
			}
		}()
		wg.Wait()

		if n := hub.ClientCount(); n != 0 {
			t.Fatalf("iteration %d: %d clients left after dropping all", i, n)
		}
	}
}

func TestBroadcastDuringStop(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		hub := NewHub(nil)
		if err := hub.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
		for j := 0; j < 100; j++ {
			addClient(hub)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := hub.Broadcast(ctx, "🔔 alert"); err != nil {
				t.Errorf("broadcast: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := hub.Stop(ctx); err != nil {
				t.Errorf("stop: %v", err)
			}
		}()
		wg.Wait()

		if n := hub.ClientCount(); n != 0 {
			t.Fatalf("iteration %d: %d clients left after stop", i, n)
		}
	}
}

func TestDropIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	c := addClient(hub)
	hub.drop(c)
	hub.drop(c)

	if sent, full := c.trySend([]byte("late")); sent || full {
		t.Fatalf("send to dropped client reported sent=%v full=%v", sent, full)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", hub.ClientCount())
	}
}

func TestServeWSRejectsWhenStopped(t *testing.T) {
	hub := NewHub(nil)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", resp.StatusCode)
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	if err := hub.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients after stop, got %d", hub.ClientCount())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
