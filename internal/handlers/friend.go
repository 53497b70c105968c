package handlers

import (
	"encoding/json"
	"net/http"

	"common-grounds-backend/internal/middleware"
	"common-grounds-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// FriendHandler handles friendship HTTP requests
type FriendHandler struct {
	friendService *services.FriendService
}

// NewFriendHandler creates a new friend handler
func NewFriendHandler(friendService *services.FriendService) *FriendHandler {
	return &FriendHandler{friendService: friendService}
}

// RequestFriendRequest represents the request body for a friend request
type RequestFriendRequest struct {
	HandleOrEmail string `json:"handle_or_email"`
}

// Request handles POST /api/v1/friends
func (h *FriendHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req RequestFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	f, err := h.friendService.Request(r.Context(), middleware.GetUserID(r.Context()), req.HandleOrEmail)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, f)
}

// RespondRequest represents the request body for answering a friend request
type RespondRequest struct {
	Accept bool `json:"accept"`
}

// Respond handles POST /api/v1/friends/{friendship_id}/respond
func (h *FriendHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	f, err := h.friendService.Respond(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "friendship_id"), req.Accept)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

// BlockRequest represents the request body for blocking a user
type BlockRequest struct {
	UserID string `json:"user_id"`
}

// Block handles POST /api/v1/friends/block
func (h *FriendHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.friendService.Block(r.Context(), middleware.GetUserID(r.Context()), req.UserID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unfriend handles DELETE /api/v1/friends/{friendship_id}
func (h *FriendHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	if err := h.friendService.Unfriend(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "friendship_id")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/friends
func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	friendships, err := h.friendService.List(r.Context(), middleware.GetUserID(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, friendships)
}
