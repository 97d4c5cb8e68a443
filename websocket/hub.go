package websocket

import (
	"cyberia/types"
	"log/slog"
	"sync"
	"time"
)

// AllJobs is the subscription key for clients that follow every job.
const AllJobs = 0

// Hub interface defines the methods for managing WebSocket connections
type Hub interface {
	Run()
	Stop()
	BroadcastState(appID int, state types.JobState)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
	ClientCount() int
}

// hub maintains the set of active clients and broadcasts messages to them
type hub struct {
	// Registered clients mapped by app id; AllJobs receives everything
	clients map[int]map[*Client]bool

	broadcast  chan types.ProgressMessage
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	logger *slog.Logger
	mu     sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub{
		clients:    make(map[int]map[*Client]bool),
		broadcast:  make(chan types.ProgressMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main event loop and returns after Stop
func (h *hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
			}
			h.clients = make(map[int]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.appID] == nil {
				h.clients[client.appID] = make(map[*Client]bool)
			}
			h.clients[client.appID][client] = true
			h.mu.Unlock()
			h.logger.Debug("WebSocket client connected", "appid", client.appID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client.appID, client)
			h.mu.Unlock()
			h.logger.Debug("WebSocket client disconnected", "appid", client.appID)

		case message := <-h.broadcast:
			h.mu.Lock()
			h.deliver(message.AppID, message)
			h.deliver(AllJobs, message)
			h.mu.Unlock()
		}
	}
}

// deliver sends message to the subscribers of key, dropping slow clients.
// Callers hold h.mu.
func (h *hub) deliver(key int, message types.ProgressMessage) {
	for client := range h.clients[key] {
		select {
		case client.send <- message:
		default:
			h.remove(key, client)
		}
	}
}

func (h *hub) remove(key int, client *Client) {
	clients, ok := h.clients[key]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, key)
	}
}

// Stop ends Run and closes every client
func (h *hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// BroadcastState converts a committed job record into a progress message
// for the job's subscribers and the AllJobs subscribers. Progress updates
// are dropped when the hub is backed up; terminal records wait for room.
func (h *hub) BroadcastState(appID int, state types.JobState) {
	message := NewProgressMessage(appID, state)

	if state.Status.IsTerminal() {
		select {
		case h.broadcast <- message:
		case <-h.stop:
		}
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("WebSocket broadcast channel full, dropping message", "appid", appID)
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// ClientCount returns the number of connected clients
func (h *hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}

// NewProgressMessage builds the wire message for a job record
func NewProgressMessage(appID int, state types.JobState) types.ProgressMessage {
	msgType := "progress"
	message := ""
	switch state.Status {
	case types.JobStatusDone:
		msgType = "complete"
		message = state.API
	case types.JobStatusFailed:
		msgType = "error"
		message = state.Error
	case types.JobStatusCancelled, types.JobStatusQueued:
		msgType = "status"
	}

	timestamp := state.UpdatedAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return types.ProgressMessage{
		AppID:      appID,
		Type:       msgType,
		Progress:   state.Progress(),
		Status:     state.Status,
		CurrentAPI: state.CurrentAPI,
		BytesRead:  state.BytesRead,
		TotalBytes: state.TotalBytes,
		Message:    message,
		Timestamp:  timestamp,
	}
}
