package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/engageflow/pkg/logger"
	"github.com/charlesng35/engageflow/pkg/metrics"
)

// Message represents a JSON payload delivered to realtime subscribers.
type Message struct {
	Stream string `json:"stream"`
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
}

// Hub fans company events out to the dashboard connections of that company.
// It satisfies flow.Publisher.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*connection]struct{}
	closed   bool
	active   atomic.Int64
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a realtime hub. Origins lists extra browser origins
// allowed to connect besides same-host and loopback.
func NewHub(origins ...string) *Hub {
	policy := newOriginPolicy(origins)
	return &Hub{
		clients: make(map[string]map[*connection]struct{}),
		log:     logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     policy.allow,
		},
	}
}

// Serve upgrades the request to a WebSocket and streams the company's events
// until the client disconnects. An empty streams list subscribes to all streams.
func (h *Hub) Serve(companyID, userID string, streams []string, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("company_id", companyID), zap.Error(err))
		return
	}

	client := newConnection(h, socket, companyID, userID)
	if len(streams) == 0 {
		streams = AllStreams
	}
	client.subscribe(streams)

	if !h.register(client) {
		goingAway := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = socket.WriteControl(websocket.CloseMessage, goingAway, time.Now().Add(writeWait))
		_ = socket.Close()
		return
	}

	go client.writeLoop()
	client.readLoop()
}

// ActiveConnections reports the number of open client connections.
func (h *Hub) ActiveConnections() int64 {
	return h.active.Load()
}

// PublishCompany delivers an event to every connection of the company
// subscribed to the event's stream. The payload is encoded once per call.
func (h *Hub) PublishCompany(companyID, event string, data any) {
	stream := streamOf(event)
	if companyID == "" || stream == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var prepared *websocket.PreparedMessage
	for client := range h.clients[companyID] {
		if !client.wants(stream) {
			continue
		}
		if prepared == nil {
			var err error
			if prepared, err = prepare(Message{Stream: stream, Event: event, Data: data}); err != nil {
				h.log.Warn("encode realtime event", zap.String("event", event), zap.Error(err))
				return
			}
		}
		h.enqueue(client, prepared)
	}
}

// Close disconnects every client and rejects later upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var clients []*connection
	for _, set := range h.clients {
		for client := range set {
			clients = append(clients, client)
		}
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

func (h *Hub) register(client *connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	set, ok := h.clients[client.companyID]
	if !ok {
		set = make(map[*connection]struct{})
		h.clients[client.companyID] = set
	}
	set[client] = struct{}{}
	h.active.Add(1)
	metrics.RealtimeConnections.Inc()
	return true
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[client.companyID]
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.companyID)
	}
	h.active.Add(-1)
	metrics.RealtimeConnections.Dec()
}

// reply sends to one client if it is still registered.
func (h *Hub) reply(client *connection, message Message) {
	prepared, err := prepare(message)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.companyID][client]; ok {
		h.enqueue(client, prepared)
	}
}

// enqueue must run under h.mu. A full buffer disconnects the client.
func (h *Hub) enqueue(client *connection, message *websocket.PreparedMessage) {
	select {
	case client.send <- message:
	default:
		metrics.RealtimeDropped.Inc()
		h.log.Warn("dropping slow realtime client",
			zap.String("company_id", client.companyID),
			zap.String("user_id", client.userID))
		go client.close()
	}
}

func prepare(message Message) (*websocket.PreparedMessage, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	return websocket.NewPreparedMessage(websocket.TextMessage, payload)
}
