package handlers

import (
	"net/http"

	"github.com/crucial707/radar/internal/middleware"
	"github.com/crucial707/radar/internal/models"
	"github.com/crucial707/radar/internal/service"
)

// ==========================
// UserHandler
// ==========================
type UserHandler struct {
	Users *service.UserService
}

// ==========================
// Register
// ==========================
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if !decodeJSON(w, r, &input) {
		return
	}

	user, err := h.Users.Register(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ==========================
// Get Me
// ==========================
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetSelf(r.Context(), middleware.CurrentUser(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ==========================
// Update Me
// ==========================
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch models.UserPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	user, err := h.Users.UpdateSelf(r.Context(), middleware.CurrentUser(r.Context()), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ==========================
// Delete Me (soft deactivate)
// ==========================
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.DeactivateSelf(r.Context(), middleware.CurrentUser(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted successfully"})
}

// ==========================
// Get User (public profile)
// ==========================
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		JSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	user, err := h.Users.GetPublicProfile(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
