package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gorilla "github.com/gorilla/websocket"

	"fedflow/internal/middleware"
	"fedflow/internal/websocket"
)

// WebSocketHandler upgrades /ws requests and hands the connection to the
// event hub.
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	timing   websocket.Timing
	logger   *slog.Logger
}

// NewWebSocketHandler creates the upgrade handler. allowedOrigins follows the
// CORS configuration: empty means same-origin only, "*" admits any origin.
func NewWebSocketHandler(hub *websocket.Hub, readBufferSize, writeBufferSize int, timing websocket.Timing, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	if hub == nil {
		panic("hub cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WebSocketHandler{
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		timing: timing,
		logger: logger.With(slog.String("handler", "websocket")),
	}
}

// ServeHTTP implements http.Handler for the upgrade endpoint.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	traceID := middleware.GetRequestID(r.Context())
	h.logger.DebugContext(r.Context(), "websocket client connected",
		slog.String("remote_addr", conn.RemoteAddr().String()),
		slog.String("trace_id", traceID))

	websocket.ServeWS(h.hub, conn, h.timing, traceID, h.logger)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin header.
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(origin, candidate) {
				return true
			}
		}
		// Same-host browser clients are always admitted.
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
