package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/metrics"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

const (
	defaultQueueSize  = 256
	ClientSendBufSize = 64
)

// Relay forwards delivered events to an out-of-process channel (Redis pub/sub).
type Relay interface {
	Publish(ctx context.Context, room string, payload []byte) error
}

type Client struct {
	ID     string
	UserID uuid.UUID
	Role   models.Role
	Conn   *WebSocketConn
	Send   chan []byte
}

// Rooms a client joins on connect: its own user room and its role room.
func (c *Client) Rooms() []string {
	return []string{models.UserChannel(c.UserID), models.RoleChannel(c.Role)}
}

// Hub fans notifications out to the websocket clients subscribed to each room.
// Publishing never blocks: when the queue or a client buffer is full the
// event is dropped.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client
	events     chan models.Notification
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	relay   Relay
	metrics *metrics.Metrics
	log     *zap.Logger
}

type HubOption func(*Hub)

func WithRelay(r Relay) HubOption {
	return func(h *Hub) { h.relay = r }
}

func WithQueueSize(n int) HubOption {
	return func(h *Hub) { h.events = make(chan models.Notification, n) }
}

func NewHub(m *metrics.Metrics, log *zap.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		events:     make(chan models.Notification, defaultQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
		log:        log,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues n for delivery. It is safe to call from request handlers.
func (h *Hub) Publish(n models.Notification) {
	h.metrics.Notifications.WithLabelValues(string(n.Type)).Inc()
	select {
	case h.events <- n:
	default:
		h.metrics.NotificationsDropped.Inc()
		h.log.Warn("notification queue full, dropping event",
			zap.String("type", string(n.Type)),
			zap.Stringer("order_id", n.OrderID),
		)
	}
}

// Subscribers returns the number of clients currently in room.
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			for _, room := range client.Rooms() {
				if h.rooms[room] == nil {
					h.rooms[room] = make(map[string]*Client)
				}
				h.rooms[room][client.ID] = client
			}
			h.mu.Unlock()
			h.metrics.WebsocketConnections.Inc()
			h.log.Debug("client registered",
				zap.String("client_id", client.ID),
				zap.Stringer("user_id", client.UserID),
				zap.String("role", string(client.Role)),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if old, ok := h.clients[client.ID]; ok {
				h.removeLocked(old)
				h.metrics.WebsocketConnections.Dec()
				h.log.Debug("client unregistered", zap.String("client_id", client.ID))
			}
			h.mu.Unlock()

		case n := <-h.events:
			h.deliver(ctx, n)
		}
	}
}

func (h *Hub) deliver(ctx context.Context, n models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		h.log.Error("marshal notification", zap.Error(err))
		return
	}

	h.mu.RLock()
	for _, room := range n.Channels {
		for _, client := range h.rooms[room] {
			select {
			case client.Send <- payload:
			default:
				h.metrics.NotificationsDropped.Inc()
			}
		}
	}
	h.mu.RUnlock()

	if h.relay == nil {
		return
	}
	for _, room := range n.Channels {
		if err := h.relay.Publish(ctx, room, payload); err != nil {
			h.log.Debug("relay publish failed", zap.String("room", room), zap.Error(err))
		}
	}
}

// removeLocked must be called with mu held.
func (h *Hub) removeLocked(c *Client) {
	delete(h.clients, c.ID)
	for _, room := range c.Rooms() {
		if members, ok := h.rooms[room]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.removeLocked(c)
	}
}
