package handlers

import (
	"net/http"

	"common-grounds-backend/internal/middleware"
	"common-grounds-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// ClassHandler handles class search and enrollment HTTP requests
type ClassHandler struct {
	classService *services.ClassService
}

// NewClassHandler creates a new class handler
func NewClassHandler(classService *services.ClassService) *ClassHandler {
	return &ClassHandler{classService: classService}
}

// Search handles GET /api/v1/classes/search
func (h *ClassHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	classes, err := h.classService.Search(r.Context(), q.Get("subject"), q.Get("catalog_number"), q.Get("term"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, classes)
}

// Enroll handles POST /api/v1/classes/{class_id}/enroll
func (h *ClassHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	err := h.classService.Enroll(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "class_id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Drop handles DELETE /api/v1/classes/{class_id}/enroll
func (h *ClassHandler) Drop(w http.ResponseWriter, r *http.Request) {
	err := h.classService.Drop(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "class_id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Mine handles GET /api/v1/classes/mine
func (h *ClassHandler) Mine(w http.ResponseWriter, r *http.Request) {
	classes, err := h.classService.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, classes)
}

// Common handles GET /api/v1/classes/common/{friend_id}
func (h *ClassHandler) Common(w http.ResponseWriter, r *http.Request) {
	classes, err := h.classService.CommonWith(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "friend_id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, classes)
}
