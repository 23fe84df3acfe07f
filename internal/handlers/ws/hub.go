package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// ClientConnection wraps a WebSocket connection with metadata. Each
// connected device gets its own session; two sessions of the same user
// never share state.
type ClientConnection struct {
	Conn       *websocket.Conn
	SessionID  string
	UserID     string
	LastPong   time.Time
	PingTicker *time.Ticker
	CloseChan  chan struct{}

	writeMu sync.Mutex
}

// WriteJSON serializes writes; aggregator pushes, message streams, and
// frame replies all share this connection.
func (cc *ClientConnection) WriteJSON(v interface{}) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return cc.Conn.WriteJSON(v)
}

// Hub manages all active WebSocket sessions
type Hub struct {
	clients      map[string]*ClientConnection
	clientsMux   sync.RWMutex
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	hub := &Hub{
		clients:      make(map[string]*ClientConnection),
		pingInterval: 30 * time.Second,
		pongTimeout:  90 * time.Second,
	}

	go hub.connectionHealthChecker()

	return hub
}

// Register adds a session with health monitoring
func (h *Hub) Register(sessionID, userID string, conn *websocket.Conn) *ClientConnection {
	clientConn := &ClientConnection{
		Conn:       conn,
		SessionID:  sessionID,
		UserID:     userID,
		LastPong:   time.Now(),
		PingTicker: time.NewTicker(h.pingInterval),
		CloseChan:  make(chan struct{}),
	}

	// Setup pong handler. Each pong extends the read deadline; without
	// the refresh every session's read loop would fail once the initial
	// deadline passed, pongs or not.
	conn.SetPongHandler(func(appData string) error {
		return conn.SetReadDeadline(h.touchSession(sessionID))
	})

	// Set read deadline for ping/pong
	conn.SetReadDeadline(time.Now().Add(h.pongTimeout))

	h.clientsMux.Lock()
	h.clients[sessionID] = clientConn
	count := len(h.clients)
	h.clientsMux.Unlock()

	// Start ping routine
	go h.pingRoutine(clientConn)

	log.Printf("User %s connected to hub (sessions: %d)", userID, count)
	return clientConn
}

// touchSession records a pong for a session and returns the extended
// read deadline.
func (h *Hub) touchSession(sessionID string) time.Time {
	now := time.Now()
	h.clientsMux.Lock()
	if client, exists := h.clients[sessionID]; exists {
		client.LastPong = now
	}
	h.clientsMux.Unlock()
	return now.Add(h.pongTimeout)
}

// Unregister removes a session
func (h *Hub) Unregister(sessionID string) {
	h.clientsMux.Lock()
	var userID string
	if client, exists := h.clients[sessionID]; exists {
		userID = client.UserID
		if client.PingTicker != nil {
			client.PingTicker.Stop()
		}
		close(client.CloseChan)
	}
	delete(h.clients, sessionID)
	count := len(h.clients)
	h.clientsMux.Unlock()
	if userID != "" {
		log.Printf("User %s disconnected from hub (sessions: %d)", userID, count)
	}
}

// IsOnline checks if a user has at least one live session
func (h *Hub) IsOnline(userID string) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	for _, client := range h.clients {
		if client.UserID == userID {
			return true
		}
	}
	return false
}

// SendToUser sends data to every session of a user
func (h *Hub) SendToUser(userID string, data interface{}) {
	h.clientsMux.RLock()
	sessions := make([]*ClientConnection, 0, 2)
	for _, client := range h.clients {
		if client.UserID == userID {
			sessions = append(sessions, client)
		}
	}
	h.clientsMux.RUnlock()

	for _, client := range sessions {
		if err := client.WriteJSON(data); err != nil {
			log.Printf("Error sending to user %s session %s: %v", userID, client.SessionID, err)
			h.Unregister(client.SessionID)
		}
	}
}

// Count returns the number of connected sessions
func (h *Hub) Count() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

// pingRoutine sends periodic ping messages to keep connection alive
func (h *Hub) pingRoutine(client *ClientConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Ping routine recovered from panic for user %s: %v", client.UserID, r)
		}
	}()

	for {
		select {
		case <-client.CloseChan:
			return
		case <-client.PingTicker.C:
			h.clientsMux.RLock()
			_, exists := h.clients[client.SessionID]
			h.clientsMux.RUnlock()

			if !exists {
				return
			}

			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				log.Printf("Ping failed for user %s: %v", client.UserID, err)
				h.Unregister(client.SessionID)
				return
			}
		}
	}
}

// connectionHealthChecker monitors connection health and removes dead connections
func (h *Hub) connectionHealthChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		h.clientsMux.RLock()
		deadSessions := make([]string, 0)
		now := time.Now()

		for sessionID, client := range h.clients {
			if now.Sub(client.LastPong) > h.pongTimeout {
				deadSessions = append(deadSessions, sessionID)
			}
		}
		h.clientsMux.RUnlock()

		for _, sessionID := range deadSessions {
			log.Printf("Removing dead session %s (no pong received)", sessionID)
			h.Unregister(sessionID)
		}
	}
}
