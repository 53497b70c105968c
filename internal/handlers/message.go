package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"common-grounds-backend/internal/middleware"
	"common-grounds-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// MessageHandler handles class message HTTP requests
type MessageHandler struct {
	messageService *services.MessageService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageService *services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// PostMessageRequest represents the request body for posting a message
type PostMessageRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id,omitempty"`
}

// Post handles POST /api/v1/classes/{class_id}/messages
func (h *MessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	view, err := h.messageService.Post(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "class_id"),
		req.Content,
		req.ParentID,
	)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

// List handles GET /api/v1/classes/{class_id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := h.messageService.List(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "class_id"),
		limit,
		offset,
	)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// Flag handles POST /api/v1/messages/{message_id}/flag
func (h *MessageHandler) Flag(w http.ResponseWriter, r *http.Request) {
	err := h.messageService.Flag(r.Context(), chi.URLParam(r, "message_id"), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
