package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"filterfinder/internal/config"
	apierrors "filterfinder/internal/errors"
	"filterfinder/internal/infrastructure"
	"filterfinder/internal/middleware"
	ws "filterfinder/internal/websocket"
)

// WebSocketHandler upgrades progress stream connections. The optional
// search_id query parameter restricts a client to one search.
type WebSocketHandler struct {
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	settings   ws.Settings
	origins    map[string]struct{}
	validator  *middleware.ValidationMiddleware
	errHandler *apierrors.ErrorHandler
	logger     *slog.Logger
}

// NewWebSocketHandler creates a handler accepting connections from the
// allowed origins, from the server's own host, and from clients that send no
// Origin header
func NewWebSocketHandler(hub *ws.Hub, cfg config.WebSocketConfig, allowedOrigins []string, validator *middleware.ValidationMiddleware, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:        hub,
		settings:   ws.SettingsFrom(cfg),
		origins:    make(map[string]struct{}, len(allowedOrigins)),
		validator:  validator,
		errHandler: errHandler,
		logger:     logger.With(slog.String("handler", "websocket")),
	}
	for _, origin := range allowedOrigins {
		h.origins[origin] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.origins[origin]; ok {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}

	h.logger.WarnContext(r.Context(), "websocket origin rejected",
		slog.String("origin", origin),
		slog.String("host", r.Host))
	return false
}

// ServeHTTP handles GET /ws
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	searchID := r.URL.Query().Get("search_id")
	if err := h.validator.ValidateVar("search_id", searchID, "omitempty,searchid"); err != nil {
		h.errHandler.HandleError(w, r, err)
		return
	}

	// the upgrader writes its own error response
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", middleware.ClientIP(r)))
		return
	}

	if err := ws.ServeWS(h.hub, conn, searchID, infrastructure.GetTraceID(ctx), h.settings, h.logger); err != nil {
		h.logger.ErrorContext(ctx, "websocket client registration failed",
			slog.String("error", err.Error()))
		return
	}

	h.logger.InfoContext(ctx, "websocket client connected",
		slog.String("search_id", searchID),
		slog.String("remote_addr", middleware.ClientIP(r)))
}
