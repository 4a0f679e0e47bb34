package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// Client control actions.
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
	actionPing        = "ping"
)

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

type connection struct {
	hub       *Hub
	socket    *websocket.Conn
	companyID string
	userID    string
	send      chan *websocket.PreparedMessage
	once      sync.Once

	mu      sync.RWMutex
	streams map[string]struct{}
}

func newConnection(hub *Hub, socket *websocket.Conn, companyID, userID string) *connection {
	return &connection{
		hub:       hub,
		socket:    socket,
		companyID: companyID,
		userID:    userID,
		send:      make(chan *websocket.PreparedMessage, sendBuffer),
		streams:   make(map[string]struct{}),
	}
}

// subscribe ignores unknown stream names.
func (c *connection) subscribe(streams []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, stream := range streams {
		if stream = normalizeStream(stream); knownStream(stream) {
			c.streams[stream] = struct{}{}
		}
	}
}

func (c *connection) unsubscribe(streams []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, stream := range streams {
		delete(c.streams, normalizeStream(stream))
	}
}

func (c *connection) wants(stream string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.streams[stream]
	return ok
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected websocket close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		c.handleControl(payload)
	}
}

// handleControl applies one client frame. Malformed frames are ignored.
func (c *connection) handleControl(payload []byte) {
	var ctrl controlMessage
	if len(payload) == 0 || json.Unmarshal(payload, &ctrl) != nil {
		return
	}

	switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
	case actionSubscribe:
		c.subscribe(ctrl.Streams)
	case actionUnsubscribe:
		c.unsubscribe(ctrl.Streams)
	case actionPing:
		c.hub.reply(c, Message{Event: "pong"})
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.socket.WritePreparedMessage(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close unregisters under the hub lock before closing send, so no publisher
// can write to a closed channel. writeLoop then says goodbye and closes the
// socket, which unblocks readLoop.
func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
	})
}
