package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prodexhq/prodex/web/handlers"
	"github.com/stretchr/testify/assert"
)

func TestWebSocketHub_ValidatesOrigin(t *testing.T) {
	hub := handlers.NewWebSocketHub()
	defer hub.Stop()

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://evil.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestWebSocketHub_BroadcastIndexed(t *testing.T) {
	hub := handlers.NewWebSocketHub()
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 1)
	mockClient := &handlers.MockClient{SendChan: received}

	hub.Register(mockClient)

	// Give the hub time to register the client
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastIndexed("t1", "feature", "f1")

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), "entity_indexed")
		assert.Contains(t, string(msg), `"tenant_id":"t1"`)
		assert.Contains(t, string(msg), `"entity_id":"f1"`)
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for broadcast message")
	}
}

func TestWebSocketHub_BroadcastSynced(t *testing.T) {
	hub := handlers.NewWebSocketHub()
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 1)
	mockClient := &handlers.MockClient{SendChan: received}

	hub.Register(mockClient)
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastSynced("t1")

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), "assistant_synced")
		assert.Contains(t, string(msg), `"tenant_id":"t1"`)
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for broadcast message")
	}
}

func TestWebSocketHub_SlowClientIsDropped(t *testing.T) {
	hub := handlers.NewWebSocketHub()
	go hub.Run()
	defer hub.Stop()

	// Unbuffered channel with no reader: the first broadcast cannot be
	// delivered and the client must be disconnected rather than block
	// the hub.
	mockClient := &handlers.MockClient{SendChan: make(chan []byte)}
	hub.Register(mockClient)
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastIndexed("t1", "feature", "f1")
	time.Sleep(10 * time.Millisecond)

	// The send channel is closed when the client is dropped.
	select {
	case _, ok := <-mockClient.SendChan:
		assert.False(t, ok, "expected closed channel for dropped client")
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for client drop")
	}
}
