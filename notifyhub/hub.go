package notifyhub

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/types"
)

// Hub holds WebSocket connections and broadcasts upload session state to all
// clients. Local UIs (tray app, browser page) subscribe here instead of
// polling the session themselves.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// New creates an empty notify hub.
func New() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Register adds a WebSocket connection to the hub.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

// Unregister removes a WebSocket connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Count returns the number of connected listeners.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends v as JSON to every registered connection. Connections are
// snapshotted under the read lock and written to outside it; a connection
// whose write fails is dropped from the hub.
func (h *Hub) Broadcast(v any) {
	if v == nil {
		return
	}
	payload, err := sonic.Marshal(v)
	if err != nil {
		tool.DefaultLogger.Errorf("Failed to marshal notify payload: %v", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.Unregister(conn)
			_ = conn.Close()
		}
	}
}

// BroadcastState wraps a session snapshot into the upload_state event
// envelope and broadcasts it.
func (h *Hub) BroadcastState(state types.UploadState) {
	h.Broadcast(&types.UploadEvent{
		Event: types.EventUploadState,
		At:    time.Now(),
		State: &state,
	})
}

// StateObserver adapts the hub into a session observer:
// session.Subscribe(notifyhub.StateObserver(hub)).
func StateObserver(h *Hub) func(types.UploadState) {
	return h.BroadcastState
}
