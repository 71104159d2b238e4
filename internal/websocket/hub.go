package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"filterfinder/internal/infrastructure"
	"filterfinder/internal/search"
)

// broadcastQueueSize bounds the messages waiting for fan-out. Publishing to
// a full queue drops the message so search workers never block on clients.
const broadcastQueueSize = 256

// ErrHubStopped is returned when registering with a stopped hub.
var ErrHubStopped = errors.New("websocket hub stopped")

type outbound struct {
	msgType  string
	searchID string
	data     []byte
}

// HubStats is a snapshot of hub activity
type HubStats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesDropped  int64 `json:"messages_dropped"`
}

// Hub maintains the set of active clients and fans search events out to them.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	stats   HubStats
	running bool
	stopped bool

	logger  *slog.Logger
	metrics *OTelMetrics

	quit chan struct{}
	done chan struct{}
}

// NewHub creates a hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *OTelMetrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan outbound, broadcastQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in a new goroutine. A stopped hub cannot be
// restarted.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.stopped {
		return
	}
	h.running = true
	go h.Run()
}

// Run is the hub loop. It returns once Stop is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.stats.ActiveClients = 0
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "normal")

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Stop ends the hub loop, closes every client and waits for the loop to exit.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	running := h.running
	h.mu.Unlock()

	close(h.quit)
	if running {
		<-h.done
	}
}

// Register adds a client. It blocks until the hub loop accepts the client.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.quit:
		return ErrHubStopped
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.stats.TotalConnections++
	h.stats.ActiveClients = len(h.clients)
	count := h.stats.ActiveClients
	h.mu.Unlock()

	ctx := client.context()
	h.metrics.RecordConnection(ctx)
	h.logger.InfoContext(ctx, "client registered",
		slog.String("client_id", client.id),
		slog.String("search_id", client.searchID),
		slog.String("remote_addr", client.remoteAddr),
		slog.Int("total_clients", count))

	msg := NewMessage(TypeConnection, client.searchID, StatusData{
		Status:  "connected",
		Message: "Connected to filterfinder progress stream",
	})
	msg.TraceID = client.traceID
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.WarnContext(ctx, "client buffer full, connection message dropped",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.stats.ActiveClients = len(h.clients)
	count := h.stats.ActiveClients
	h.mu.Unlock()

	ctx := client.context()
	lifetime := time.Since(client.connectedAt)
	h.metrics.RecordDisconnection(ctx, lifetime, reason)
	h.logger.InfoContext(ctx, "client unregistered",
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", lifetime),
		slog.Int("total_clients", count))
}

func (h *Hub) fanOut(msg outbound) {
	var delivered int
	var slow []*Client

	h.mu.Lock()
	for client := range h.clients {
		if !client.watches(msg.searchID) {
			continue
		}
		select {
		case client.send <- msg.data:
			delivered++
		default:
			slow = append(slow, client)
		}
	}
	h.stats.MessagesSent += int64(delivered)
	h.mu.Unlock()

	for _, client := range slow {
		h.removeClient(client, "slow_client")
	}

	h.metrics.RecordBroadcast(context.Background(), msg.msgType, delivered, len(slow), len(msg.data))
	h.logger.Debug("broadcast",
		slog.String("type", msg.msgType),
		slog.String("search_id", msg.searchID),
		slog.Int("delivered", delivered),
		slog.Int("dropped", len(slow)))
}

// Publish queues msg for every interested client without blocking. The
// trace id is taken from ctx when msg carries none.
func (h *Hub) Publish(ctx context.Context, msg Message) {
	if msg.TraceID == "" {
		msg.TraceID = infrastructure.GetTraceID(ctx)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "marshal message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
		return
	}

	select {
	case <-h.quit:
		return
	default:
	}

	select {
	case h.broadcast <- outbound{msgType: msg.Type, searchID: msg.SearchID, data: data}:
	default:
		h.mu.Lock()
		h.stats.MessagesDropped++
		h.mu.Unlock()
		h.metrics.RecordDropped(ctx, msg.Type)
		h.logger.WarnContext(ctx, "broadcast queue full, message dropped",
			slog.String("type", msg.Type),
			slog.String("search_id", msg.SearchID))
	}
}

// BroadcastProgress publishes a search:progress message.
func (h *Hub) BroadcastProgress(ctx context.Context, searchID string, snapshot search.ProgressSnapshot) {
	h.Publish(ctx, NewMessage(TypeSearchProgress, searchID, ProgressFromSnapshot(snapshot)))
}

// BroadcastStatus publishes a search:status message.
func (h *Hub) BroadcastStatus(ctx context.Context, searchID, status, message string) {
	h.Publish(ctx, NewMessage(TypeSearchStatus, searchID, StatusData{Status: status, Message: message}))
}

// BroadcastComplete publishes a search:complete message carrying summary.
func (h *Hub) BroadcastComplete(ctx context.Context, searchID string, summary interface{}) {
	h.Publish(ctx, NewMessage(TypeSearchComplete, searchID, summary))
}

// BroadcastFailed publishes a search:failed message.
func (h *Hub) BroadcastFailed(ctx context.Context, searchID, status, message string) {
	h.Publish(ctx, NewMessage(TypeSearchFailed, searchID, StatusData{Status: status, Message: message}))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns a snapshot of hub activity.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}
