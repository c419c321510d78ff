package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nestmatch/nestmatch-backend/internal/middleware"
	"github.com/nestmatch/nestmatch-backend/internal/ws"
)

// WSHandler handles WebSocket connections: server push for
// conversation/message/read events, client frames for typing signals
type WSHandler struct {
	hub            *ws.Hub
	bridge         *ws.Bridge
	typing         *ws.TypingRegistry
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *ws.Hub, bridge *ws.Bridge, typing *ws.TypingRegistry, allowedOrigins []string) *WSHandler {
	h := &WSHandler{
		hub:            hub,
		bridge:         bridge,
		typing:         typing,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin validates the request origin against allowed origins
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Same-origin requests don't have Origin header
	}

	// If no allowed origins configured, allow all (development mode)
	if len(h.allowedOrigins) == 0 {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == strings.TrimSpace(allowed) {
			return true
		}
	}

	return false
}

// Connect handles GET /ws, the WebSocket upgrade endpoint
func (h *WSHandler) Connect(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := ws.NewClient(h.hub, conn, userID, h.handleFrame)
	h.hub.Register(client)

	go client.WritePump()
	go func() {
		client.ReadPump()
		// Last session gone: drop any pending debounce so no refresh
		// fires after the user lost interest
		if !h.hub.HasClients(userID) {
			h.bridge.Cancel(userID)
		}
	}()
}

// handleFrame consumes inbound client frames (typing signals only)
func (h *WSHandler) handleFrame(userID string, frame *ws.ClientFrame) {
	if frame.Type != "typing" || frame.ConversationID == "" {
		return
	}
	if frame.Typing {
		h.typing.Start(frame.ConversationID, userID)
	} else {
		h.typing.Stop(frame.ConversationID, userID)
	}
}
