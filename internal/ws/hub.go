package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

const redisPubSubChannel = "nestmatch:events"

// Server-push event types
const (
	EventConversationChanged = "conversation_changed" // debounced refresh signal
	EventMessageNew          = "message_new"          // a confirmed message arrived
	EventTyping              = "typing"               // ephemeral typing set change
	EventRead                = "read"                 // read receipts applied
)

// Event represents a real-time event sent via WebSocket
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub manages WebSocket clients and broadcasts events. One logical
// channel exists per user: every session of that user receives the
// same events.
type Hub struct {
	// Registered clients grouped by user ID
	clients map[string]map[*Client]bool

	// Register/unregister channels
	register   chan *Client
	unregister chan *Client

	// Broadcast to a specific user
	broadcast chan *targetedEvent

	mu          sync.RWMutex
	redisClient *redis.Client
	ctx         context.Context
	cancel      context.CancelFunc
}

type targetedEvent struct {
	UserID string
	Event  *Event
}

// NewHub creates a new Hub
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *targetedEvent, 256),
		redisClient: redisClient,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	// Start Redis subscriber if Redis is available
	if h.redisClient != nil {
		go h.subscribeRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.userID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.userID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Event)
			if err != nil {
				continue
			}
			// Full lock: evicting a backed-up client mutates the client
			// set, which HasClients reads concurrently
			h.mu.Lock()
			if clients, ok := h.clients[msg.UserID]; ok {
				for client := range clients {
					select {
					case client.send <- data:
					default:
						close(client.send)
						delete(clients, client)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.UserID)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// HasClients reports whether any session of the user is connected
func (h *Hub) HasClients(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// SendToUser sends an event to a specific user (local + Redis publish)
func (h *Hub) SendToUser(userID string, event *Event) {
	// Local broadcast
	h.broadcast <- &targetedEvent{UserID: userID, Event: event}

	// Publish to Redis for multi-instance support
	if h.redisClient != nil {
		msg := &redisMessage{UserID: userID, Event: event}
		data, err := json.Marshal(msg)
		if err == nil {
			h.redisClient.Publish(h.ctx, redisPubSubChannel, data) //nolint:errcheck
		}
	}
}

type redisMessage struct {
	UserID string `json:"user_id"`
	Event  *Event `json:"event"`
}

// subscribeRedis listens for events published by other instances.
// go-redis resubscribes internally on connection loss; a coverage gap
// is acceptable since the next user-initiated fetch reconciles anyway.
func (h *Hub) subscribeRedis() {
	pubsub := h.redisClient.Subscribe(h.ctx, redisPubSubChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm redisMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err == nil {
				// Only local broadcast (don't re-publish to Redis)
				h.broadcast <- &targetedEvent{UserID: rm.UserID, Event: rm.Event}
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.cancel()
}
