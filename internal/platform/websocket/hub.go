// Package websocket pushes live queue updates to waiting-room displays and
// staff dashboards. Clients subscribe to topics ("queue" for the whole board,
// "queue:doctor:<id>" for one doctor's line) and receive every event broadcast
// to those topics.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Event is one queue change pushed to subscribed clients.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is what a connected display sends back: subscribe or
// unsubscribe plus the topics it cares about.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher is what the queue service depends on; the Hub satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn is the slice of a WebSocket connection the client pumps need.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one connected display or dashboard.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
	hub    *Hub
	conn   Conn
}

// Hub tracks connected clients and their topic subscriptions. Safe for
// concurrent use; broadcasts never block on a slow client.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	conns  map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		conns:  make(map[*Client]struct{}),
	}
}

// Register adds a client and its initial topic subscriptions.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[client] = struct{}{}
	h.addTopics(client, client.Topics)
}

// Unregister drops the client everywhere and closes its Send channel, which
// stops the write pump.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[client]; !ok {
		return
	}
	h.dropTopics(client, client.Topics)
	delete(h.conns, client)
	close(client.Send)
}

// Subscribe adds topics to a client that is already connected.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.addTopics(client, topics)
	client.Topics = append(client.Topics, topics...)
}

// Unsubscribe removes topics from a connected client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropTopics(client, topics)

	dropped := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		dropped[t] = struct{}{}
	}
	kept := client.Topics[:0]
	for _, t := range client.Topics {
		if _, gone := dropped[t]; !gone {
			kept = append(kept, t)
		}
	}
	client.Topics = kept
}

// addTopics and dropTopics assume h.mu is held.
func (h *Hub) addTopics(client *Client, topics []string) {
	for _, topic := range topics {
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[*Client]struct{})
		}
		h.topics[topic][client] = struct{}{}
	}
}

func (h *Hub) dropTopics(client *Client, topics []string) {
	for _, topic := range topics {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
}

// ProcessMessage applies one inbound client message.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast delivers an event to every client subscribed to the topic.
func (h *Hub) Broadcast(topic string, event Event) {
	data, ok := encode(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.topics[topic] {
		deliver(client, data)
	}
}

// BroadcastAll delivers an event to every connected client, subscribed or not.
// Used for clinic-wide announcements.
func (h *Hub) BroadcastAll(event Event) {
	data, ok := encode(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.conns {
		deliver(client, data)
	}
}

// Publish satisfies EventPublisher by broadcasting on the event's own topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// TopicCount reports how many clients are subscribed to one topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func encode(event Event) ([]byte, bool) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket: drop unencodable event %s: %v", event.Type, err)
		return nil, false
	}
	return data, true
}

// deliver enqueues without blocking: a display that stopped reading loses
// events instead of stalling everyone else's board.
func deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
	}
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Waiting-room displays are served from kiosk hosts we do not
		// control, so origin checks stay open here and access control
		// happens at the network layer.
		return true
	},
}

// WebSocketHandler upgrades HTTP requests and runs the per-client pumps.
type WebSocketHandler struct {
	hub *Hub
}

func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

func (wsh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades the connection and registers the client. Clients
// start with no subscriptions and send a subscribe message for the topics
// they want.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:     uuid.New().String(),
		Topics: []string{},
		Send:   make(chan []byte, 256),
		hub:    wsh.hub,
		conn:   &gorillaConnAdapter{ws},
	}
	wsh.hub.Register(client)

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *WebSocketHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *WebSocketHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()
	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}

// gorillaConnAdapter narrows a gorilla connection to the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
