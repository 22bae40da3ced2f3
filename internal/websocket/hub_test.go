package websocket

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func testHub(origins []string) *Hub {
	return NewHub(&HubConfig{
		MaxConnections:  10,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		AllowedOrigins:  origins,
	}, zap.NewNop())
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"EmptyOriginAllowed", []string{"https://veil.example"}, "", true},
		{"WildcardAllowsAny", []string{"*"}, "https://anywhere.example", true},
		{"ExactMatch", []string{"https://veil.example"}, "https://veil.example", true},
		{"Mismatch", []string{"https://veil.example"}, "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := testHub(tt.allowed)
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := hub.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%s) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestShouldSendToClient(t *testing.T) {
	hub := testHub([]string{"*"})
	event := Event{Type: EventTypePIIDetection}

	t.Run("NoSubscriptionReceivesAll", func(t *testing.T) {
		client := &Client{ID: "c1"}
		if !hub.shouldSendToClient(client, event) {
			t.Error("expected client without subscription to receive event")
		}
	})

	t.Run("SubscribedType", func(t *testing.T) {
		client := &Client{ID: "c2", Subscription: &SubscriptionRequest{
			Events: []EventType{EventTypePIIDetection, EventTypeRequestLog},
		}}
		if !hub.shouldSendToClient(client, event) {
			t.Error("expected subscribed client to receive event")
		}
	})

	t.Run("UnsubscribedType", func(t *testing.T) {
		client := &Client{ID: "c3", Subscription: &SubscriptionRequest{
			Events: []EventType{EventTypeSystemStatus},
		}}
		if hub.shouldSendToClient(client, event) {
			t.Error("expected unsubscribed client to be skipped")
		}
	})
}

func TestBroadcastEvictsSlowClients(t *testing.T) {
	hub := testHub([]string{"*"})
	slow := &Client{ID: "slow", Send: make(chan Event)}
	fast := &Client{ID: "fast", Send: make(chan Event, 4)}
	hub.clients[slow] = true
	hub.clients[fast] = true
	hub.stats.ActiveConnections = 2

	hub.broadcastEvent(Event{Type: EventTypePIIDetection})

	if _, ok := hub.clients[slow]; ok {
		t.Error("client with full send channel still registered after broadcast")
	}
	select {
	case _, open := <-slow.Send:
		if open {
			t.Error("evicted client received an event instead of a close")
		}
	default:
		t.Error("evicted client send channel not closed")
	}

	if len(fast.Send) != 1 {
		t.Errorf("fast client received %d events, want 1", len(fast.Send))
	}
	if got := hub.GetStats().ActiveConnections; got != 1 {
		t.Errorf("ActiveConnections = %d, want 1", got)
	}
}

// Broadcast paths run concurrently: registerClient fires
// broadcastToOthers in its own goroutine while the Run loop calls
// broadcastEvent. Eviction mutates the client map, so both must hold
// the write lock; the race detector catches any regression here.
func TestBroadcastConcurrentWithConnectionEvents(t *testing.T) {
	hub := testHub([]string{"*"})
	for i := 0; i < 8; i++ {
		client := &Client{ID: fmt.Sprintf("c%d", i), Send: make(chan Event, 1)}
		hub.clients[client] = true
		hub.stats.ActiveConnections++
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.broadcastEvent(Event{Type: EventTypeRequestLog})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.broadcastToOthers(Event{Type: EventTypeConnection}, nil)
			}
		}()
	}
	wg.Wait()
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{
			"ForwardedFor",
			func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7") },
			"203.0.113.7",
		},
		{
			"RealIP",
			func(r *http.Request) { r.Header.Set("X-Real-IP", "198.51.100.4") },
			"198.51.100.4",
		},
		{
			"RemoteAddrFallback",
			func(r *http.Request) {},
			"192.0.2.1:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(req)
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %s, want %s", got, tt.want)
			}
		})
	}
}
