package handlers

import (
	"encoding/json"
	"net/http"

	"common-grounds-backend/internal/apperr"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// statusFor maps an error kind to an HTTP status. Uncategorized errors fail
// closed as 500 with a generic message.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInvalidToken, apperr.KindSessionExpired:
		return http.StatusUnauthorized
	case apperr.KindNotAuthorized, apperr.KindNotEnrolled:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAlreadyExists:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindEmailDelivery:
		return http.StatusBadGateway
	case apperr.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError translates a service error into an HTTP response.
// Internal detail is logged here and never written to the client.
func respondServiceError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Error().Err(err).Msg("Request failed")
	}
	respondError(w, apperr.MessageOf(err), statusFor(kind))
}
