package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"common-grounds-backend/internal/middleware"
	"common-grounds-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// AuthHandler handles authentication HTTP requests
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RequestLinkRequest represents the request body for requesting a login link
type RequestLinkRequest struct {
	Email string `json:"email"`
}

// RequestLink handles POST /api/v1/auth/request
func (h *AuthHandler) RequestLink(w http.ResponseWriter, r *http.Request) {
	var req RequestLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.authService.Request(r.Context(), req.Email); err != nil {
		respondServiceError(w, err)
		return
	}

	// Nothing beyond success is returned; the token travels only by email.
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// VerifyRequest represents the request body for verifying a magic link
type VerifyRequest struct {
	Token string `json:"token"`
}

// Verify handles POST /api/v1/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		respondError(w, "token is required", http.StatusBadRequest)
		return
	}

	user, credential, err := h.authService.Verify(r.Context(), req.Token)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": credential,
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
		return
	}

	if err := h.authService.Logout(r.Context(), parts[1]); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().Str("user_id", middleware.GetUserID(r.Context())).Msg("Logged out")
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.Me(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// PushTokenRequest represents the request body for updating a push token
type PushTokenRequest struct {
	PushToken *string `json:"push_token"`
}

// UpdatePushToken handles PUT /api/v1/me/push-token
func (h *AuthHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.authService.SetPushToken(r.Context(), middleware.GetUserID(r.Context()), req.PushToken); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount handles DELETE /api/v1/me
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.DeleteAccount(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
