package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aaronwang/agreeconnect/shared/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
	maxMessageSize = 4096
)

// ErrManagerStopped is returned when registering with a manager whose Run
// loop has exited.
var ErrManagerStopped = errors.New("websocket manager stopped")

// Manager keeps one room per listing and fans listing events out to the
// clients in it. Room membership is only changed by the Run goroutine.
type Manager struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	logger  logging.Logger
	metrics *Metrics
}

// Client represents a WebSocket client connection
type Client struct {
	ID        string
	ListingID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// BroadcastMessage is a payload for every client watching a listing
type BroadcastMessage struct {
	ListingID string
	Payload   []byte
}

// NewManager creates a new WebSocket manager
func NewManager(logger logging.Logger, m *Metrics) *Manager {
	return &Manager{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run owns room membership until ctx is done. On exit every client is
// disconnected.
func (m *Manager) Run(ctx context.Context) error {
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case client := <-m.register:
			m.addClient(client)
		case client := <-m.unregister:
			if m.removeClient(client) {
				m.logger.Debug("client_left", "client", client.ID, "listing", client.ListingID)
			}
		case msg := <-m.broadcast:
			m.deliver(msg)
		}
	}
}

// RegisterClient joins client to its listing's room and starts its writer
func (m *Manager) RegisterClient(ctx context.Context, client *Client) error {
	select {
	case m.register <- client:
		return nil
	case <-m.done:
		return ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnregisterClient removes client from its room. Unknown or already removed
// clients are ignored.
func (m *Manager) UnregisterClient(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Broadcast queues payload for every client in the listing's room
func (m *Manager) Broadcast(listingID string, payload []byte) {
	select {
	case m.broadcast <- &BroadcastMessage{ListingID: listingID, Payload: payload}:
	case <-m.done:
	}
}

// SubscriberCount returns the number of clients watching a listing
func (m *Manager) SubscriberCount(listingID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[listingID])
}

func (m *Manager) addClient(client *Client) {
	m.mu.Lock()
	room, ok := m.rooms[client.ListingID]
	if !ok {
		room = make(map[*Client]struct{})
		m.rooms[client.ListingID] = room
	}
	room[client] = struct{}{}
	m.updateGauges()
	m.mu.Unlock()

	m.logger.Debug("client_joined", "client", client.ID, "listing", client.ListingID)
	go client.writePump()
}

// removeClient reports whether client was still in a room. Send is closed
// exactly once, by whoever removes the client from its room.
func (m *Manager) removeClient(client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := m.rooms[client.ListingID]
	if _, ok := room[client]; !ok {
		return false
	}
	delete(room, client)
	if len(room) == 0 {
		delete(m.rooms, client.ListingID)
	}
	close(client.Send)
	m.updateGauges()
	return true
}

func (m *Manager) deliver(msg *BroadcastMessage) {
	var slow []*Client

	m.mu.RLock()
	delivered := 0
	for client := range m.rooms[msg.ListingID] {
		select {
		case client.Send <- msg.Payload:
			delivered++
		default:
			slow = append(slow, client)
		}
	}
	m.mu.RUnlock()

	m.metrics.Deliveries.Add(float64(delivered))
	for _, client := range slow {
		if m.removeClient(client) {
			m.metrics.DroppedClients.Add(1)
			m.logger.Info("slow_client_dropped", "client", client.ID, "listing", client.ListingID)
		}
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	for _, room := range m.rooms {
		for client := range room {
			close(client.Send)
		}
	}
	m.rooms = make(map[string]map[*Client]struct{})
	m.updateGauges()
	m.mu.Unlock()

	close(m.done)
}

// updateGauges must be called with mu held
func (m *Manager) updateGauges() {
	clients := 0
	for _, room := range m.rooms {
		clients += len(room)
	}
	m.metrics.Subscribers.Set(float64(clients))
	m.metrics.Rooms.Set(float64(len(m.rooms)))
}

// writePump pumps messages from the Send channel to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Removed from the room
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the connection going away; clients have
// nothing to say on a room connection.
func (c *Client) readPump(m *Manager) {
	defer m.UnregisterClient(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("websocket_read_failed", "client", c.ID, "err", err)
			}
			return
		}
	}
}
