// Package main provides the StayOps Core backend server.
package main

import (
	"encoding/json"
	"net"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/atriumlabs/stayops/backend/internal/logging"
	"github.com/atriumlabs/stayops/backend/internal/sync"
	"github.com/atriumlabs/stayops/backend/internal/uuid"
)

// allowedHosts builds the set of Host headers accepted for WebSocket
// upgrades from the server's listen address. Front-desk terminals connect
// from the same host only.
func allowedHosts(listenAddr string) map[string]bool {
	hosts := map[string]bool{
		"localhost": true,
		"127.0.0.1": true,
	}
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		hosts[listenAddr] = true
		return hosts
	}
	hosts["localhost:"+port] = true
	hosts["127.0.0.1:"+port] = true
	if host != "" {
		hosts[host] = true
		hosts[net.JoinHostPort(host, port)] = true
	}
	return hosts
}

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id            string
	conn          *websocket.Conn
	send          chan []byte
	hub           *WSHub
	subscriptions map[string]bool
}

// WSHub maintains active client connections and broadcasts engine events to
// them. It implements sync.EventHandler so it can be registered directly on
// the reconciliation engine.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	upgrader   websocket.Upgrader
	log        zerolog.Logger
	mu         stdsync.RWMutex
}

// WSEnvelope wraps all WebSocket messages.
type WSEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// =====================================================
// WebSocket Event Types
// =====================================================

const (
	EventConnectivityChanged = "connectivity.changed"
	EventSyncStatusChanged   = "sync.status_changed"
	EventSyncCompleted       = "sync.completed"
)

// NewWSHub creates a new WebSocket hub. listenAddr is the server's HTTP
// listen address and bounds which Host headers may upgrade.
func NewWSHub(listenAddr string) *WSHub {
	allowed := allowedHosts(listenAddr)
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowed[r.Host]
			},
		},
		log: logging.Component("websocket"),
	}
	go hub.run()
	return hub
}

// run manages client connections and broadcasts.
func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.log.Debug().Str("client_id", client.id).Int("total", len(h.clients)).Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug().Str("client_id", client.id).Int("total", len(h.clients)).Msg("client disconnected")

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client send buffer is full, close connection
					close(client.send)
					delete(h.clients, client.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(messageType string, data map[string]interface{}) {
	envelope := WSEnvelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	h.broadcast <- bytes
}

// OnSyncEvent forwards engine notifications to connected clients.
func (h *WSHub) OnSyncEvent(event sync.Event) {
	switch event.Type {
	case sync.EventConnectivityChanged:
		mode := "offline"
		if event.RemoteReachable {
			mode = "online"
		}
		h.Broadcast(EventConnectivityChanged, map[string]interface{}{
			"remote_reachable": event.RemoteReachable,
			"mode":             mode,
		})

	case sync.EventSyncStatusChanged:
		h.Broadcast(EventSyncStatusChanged, map[string]interface{}{
			"status": event.Status,
		})

	case sync.EventSyncCompleted:
		data := map[string]interface{}{}
		if event.Result != nil {
			data["success"] = event.Result.Success
			data["pushed_count"] = event.Result.PushedCount
			data["message"] = event.Result.Message
			if len(event.Result.Errors) > 0 {
				data["errors"] = event.Result.Errors
			}
		}
		h.Broadcast(EventSyncCompleted, data)
	}
}

// readPump pumps messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("client_id", c.id).Msg("read error")
			}
			break
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Debug().Err(err).Msg("invalid message format")
			continue
		}

		action, ok := msg["action"].(string)
		if !ok {
			continue
		}

		switch action {
		case "subscribe":
			if events, ok := msg["events"].([]interface{}); ok {
				for _, e := range events {
					if eventStr, ok := e.(string); ok {
						c.subscriptions[eventStr] = true
					}
				}
				c.sendAck("subscribe_ack", events)
			}

		case "unsubscribe":
			if events, ok := msg["events"].([]interface{}); ok {
				for _, e := range events {
					if eventStr, ok := e.(string); ok {
						delete(c.subscriptions, eventStr)
					}
				}
			}

		case "ping":
			c.sendPong()
		}
	}
}

// writePump pumps messages to the WebSocket connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendAck sends a subscription acknowledgment.
func (c *WSClient) sendAck(action string, events []interface{}) {
	envelope := map[string]interface{}{
		"action":     action,
		"subscribed": events,
		"timestamp":  time.Now().Unix(),
	}

	bytes, _ := json.Marshal(envelope)
	c.send <- bytes
}

// sendPong sends a pong response.
func (c *WSClient) sendPong() {
	envelope := map[string]interface{}{
		"action":    "pong",
		"timestamp": time.Now().Unix(),
	}

	bytes, _ := json.Marshal(envelope)
	c.send <- bytes
}

// HandleWebSocket handles WebSocket upgrade requests.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn().Err(err).Msg("failed to upgrade")
			return
		}

		client := &WSClient{
			id:            uuid.New(),
			conn:          conn,
			send:          make(chan []byte, 256),
			hub:           hub,
			subscriptions: make(map[string]bool),
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
