package handlers

import (
	"net/http"

	"common-grounds-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles realtime class feed connections
type WebSocketHandler struct {
	hub          *services.ClassHub
	authService  *services.AuthService
	classService *services.ClassService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.ClassHub, authService *services.AuthService, classService *services.ClassService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:          hub,
		authService:  authService,
		classService: classService,
	}
}

// HandleWebSocket handles GET /ws. The connection authenticates once with the
// same session validation as HTTP requests, then follows the caller's
// enrolled-class channels until it closes.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	claims, err := h.authService.Validate(r.Context(), token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	classes, err := h.classService.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	classIDs := make([]string, 0, len(classes))
	for _, c := range classes {
		classIDs = append(classIDs, c.ID)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.hub.Register(claims.UserID, conn, classIDs)
	defer h.hub.Unregister(conn)

	log.Info().Str("user_id", claims.UserID).Msg("WebSocket connection established")

	// The feed is push-only; inbound frames are drained until close so that
	// control frames keep being processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", claims.UserID).Msg("WebSocket error")
			}
			break
		}
	}
}
