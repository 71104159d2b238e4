package websocket

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"filterfinder/internal/config"
	"filterfinder/internal/infrastructure"
)

// Settings holds per-connection timing and sizing
type Settings struct {
	// WriteWait is the time allowed to write a frame.
	WriteWait time.Duration
	// PongWait is the time allowed to read the next pong. PingPeriod must be
	// shorter.
	PongWait   time.Duration
	PingPeriod time.Duration
	// MaxMessageSize limits inbound frames.
	MaxMessageSize int64
	// SendBuffer is the number of frames queued per client before the client
	// is considered slow and dropped.
	SendBuffer int
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		WriteWait:      10 * time.Second,
		PongWait:       config.WebSocketPongWait,
		PingPeriod:     config.WebSocketPingPeriod,
		MaxMessageSize: 512,
		SendBuffer:     256,
	}
}

// SettingsFrom applies the configured ping and pong timings to the defaults.
func SettingsFrom(cfg config.WebSocketConfig) Settings {
	s := DefaultSettings()
	if cfg.PingPeriod > 0 {
		s.PingPeriod = cfg.PingPeriod
	}
	if cfg.PongWait > 0 {
		s.PongWait = cfg.PongWait
	}
	return s
}

var (
	newline   = []byte{'\n'}
	space     = []byte{' '}
	heartbeat = []byte(`{"type":"heartbeat"}`)
)

// Client is a middleman between one websocket connection and the hub
type Client struct {
	hub  *Hub
	conn Connection
	send chan []byte

	id          string
	searchID    string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	settings Settings
	logger   *slog.Logger

	messagesSent  int64
	bytesSent     int64
	bytesReceived int64
}

// NewClient creates a client. An empty searchID subscribes the client to
// every search.
func NewClient(hub *Hub, conn Connection, searchID, traceID string, settings Settings, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.SendBuffer <= 0 {
		settings.SendBuffer = DefaultSettings().SendBuffer
	}

	id := uuid.New().String()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, settings.SendBuffer),
		id:          id,
		searchID:    searchID,
		traceID:     traceID,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		settings:    settings,
		logger: logger.With(
			slog.String("component", "websocket.client"),
			slog.String("client_id", id),
		),
	}
}

// ID returns the client's generated id.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) watches(searchID string) bool {
	return c.searchID == "" || searchID == "" || c.searchID == searchID
}

func (c *Client) context() context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}

// ReadPump drains inbound frames until the connection fails, then
// unregisters the client. Clients only send heartbeats.
func (c *Client) ReadPump() {
	ctx := c.context()
	defer func() {
		c.logger.InfoContext(ctx, "client disconnected",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("bytes_received", c.bytesReceived))
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WarnContext(ctx, "unexpected close",
					slog.String("error", err.Error()))
			}
			return
		}
		message = bytes.TrimSpace(bytes.ReplaceAll(message, newline, space))
		c.bytesReceived += int64(len(message))

		if bytes.Equal(message, heartbeat) {
			c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
			continue
		}
		c.logger.DebugContext(ctx, "ignoring client message",
			slog.Int("size", len(message)))
	}
}

// WritePump writes queued frames and periodic pings until the hub closes the
// send channel or a write fails.
func (c *Client) WritePump() {
	ctx := c.context()
	ticker := time.NewTicker(c.settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.DebugContext(ctx, "write pump stopped",
			slog.Int64("messages_sent", c.messagesSent),
			slog.Int64("bytes_sent", c.bytesSent))
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.WarnContext(ctx, "write failed",
					slog.String("error", err.Error()))
				return
			}
			c.messagesSent++
			c.bytesSent += int64(len(message))

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(ctx, "ping failed",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

// ServeWS registers an upgraded connection and starts its pumps.
func ServeWS(hub *Hub, conn *websocket.Conn, searchID, traceID string, settings Settings, logger *slog.Logger) error {
	client := NewClient(hub, WrapConn(conn), searchID, traceID, settings, logger)
	if err := hub.Register(client); err != nil {
		conn.Close()
		return err
	}

	go client.WritePump()
	go client.ReadPump()
	return nil
}
