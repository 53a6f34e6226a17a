package ws

import (
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans motion events out to WebSocket clients subscribed per camera.
type Hub struct {
	// clients maps camera name -> set of connections
	clients map[string]map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*websocket.Conn]bool),
	}
}

// Register adds a connection for a specific camera.
func (h *Hub) Register(camera string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[camera] == nil {
		h.clients[camera] = make(map[*websocket.Conn]bool)
	}
	h.clients[camera][conn] = true
	fmt.Printf("[WS] Client registered for camera %s (total: %d)\n", camera, len(h.clients[camera]))
}

// Unregister removes a connection for a specific camera.
func (h *Hub) Unregister(camera string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[camera]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, camera)
		}
		fmt.Printf("[WS] Client unregistered for camera %s\n", camera)
	}
}

// HasClients reports whether any client watches the camera.
func (h *Hub) HasClients(camera string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.clients[camera]
	return ok && len(conns) > 0
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// MotionMessage is the per-frame payload pushed to watchers.
type MotionMessage struct {
	Type      string      `json:"type"`
	Camera    string      `json:"camera"`
	Timestamp time.Time   `json:"timestamp"`
	Boxes     []MotionBox `json:"boxes"`
}

// MotionBox is one detected region with its ROI and optional object label.
type MotionBox struct {
	ROI        string  `json:"roi"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Label      string  `json:"label,omitempty"`
	Confidence float32 `json:"confidence,omitempty"`
}

// BoxFromRect converts a rectangle into the wire shape.
func BoxFromRect(roi string, r image.Rectangle) MotionBox {
	return MotionBox{
		ROI:    roi,
		X:      r.Min.X,
		Y:      r.Min.Y,
		Width:  r.Dx(),
		Height: r.Dy(),
	}
}

// BroadcastMotion sends the message to every client of the camera. Skips
// marshaling entirely when nobody is watching.
func (h *Hub) BroadcastMotion(camera string, msg *MotionMessage) {
	if !h.HasClients(camera) {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		fmt.Printf("[WS] Error marshaling motion message: %v\n", err)
		return
	}
	h.broadcast(camera, data)
}

func (h *Hub) broadcast(camera string, message []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[camera]))
	for conn := range h.clients[camera] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			fmt.Printf("[WS] Error sending to client: %v\n", err)
			h.Unregister(camera, conn)
			conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeCamera upgrades the request and keeps the connection registered for
// the camera until the client goes away.
func (h *Hub) ServeCamera(w http.ResponseWriter, r *http.Request, camera string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("[WS] Upgrade failed for camera %s: %v\n", camera, err)
		return
	}

	h.Register(camera, conn)
	defer func() {
		h.Unregister(camera, conn)
		conn.Close()
	}()

	// Reads only serve liveness; clients never send payloads.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
