package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10
)

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// Hub manages dashboard WebSocket connections and pushes the current top
// page to them on a ticker, so boards stay live without polling.
type Hub struct {
	clients    map[*websocket.Conn]*wsClient
	perIP      map[string]int
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	upgrader websocket.Upgrader
}

// NewHub creates a hub with connection limiting and an origin check over
// the given allowed origins (localhost is always allowed).
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]*wsClient),
		perIP:      make(map[string]int),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if originAllowed(origin, allowedOrigins) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	for _, a := range allowed {
		if origin == a {
			return true
		}
	}
	return false
}

// Run starts the hub loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Dashboard connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.mu.Lock()
			h.drop(conn)
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Dashboard disconnected (%d remaining)", count)
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.drop(conn)
				}
			}
			h.mu.Unlock()
			IncrementWSMessages()
		}
	}
}

// drop removes a connection and releases its per-IP slot. Caller holds mu.
func (h *Hub) drop(conn *websocket.Conn) {
	if client, ok := h.clients[conn]; ok {
		if h.perIP[client.ip] > 0 {
			h.perIP[client.ip]--
		}
		delete(h.clients, conn)
		conn.Close()
	}
}

// Broadcast sends an event to all connected clients. Non-blocking: drops
// the message when the channel is full (backpressure).
func (h *Hub) Broadcast(event string, data interface{}) {
	msg, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		return
	}

	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop pushes the current top page and index stats to all
// connected dashboards every interval. Skips the store round trip when
// nobody is listening.
func (h *Hub) StartBroadcastLoop(engine EngineInterface, pageSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		for range ticker.C {
			if h.ClientCount() == 0 {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), interval)
			page := engine.GetPage(ctx, pageSize, 0)
			size := engine.IndexSize(ctx)
			cancel()

			h.Broadcast("ranking:page", page)
			h.Broadcast("ranking:stats", map[string]interface{}{
				"indexSize": size,
				"total":     page.Total,
			})
		}
	}()
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	h.mu.Lock()
	if len(h.clients) >= MaxWSConnectionsTotal {
		h.mu.Unlock()
		log.Printf("⚠️ WebSocket connection rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if h.perIP[ip] >= MaxWSConnectionsPerIP {
		h.mu.Unlock()
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}
	h.perIP[ip]++
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.mu.Lock()
		if h.perIP[ip] > 0 {
			h.perIP[ip]--
		}
		h.mu.Unlock()
		return
	}

	h.register <- &wsClient{conn: conn, ip: ip}

	// Drain client messages; the board protocol is push-only.
	go func() {
		defer func() {
			h.unregister <- conn
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
