package handlers

import (
	"errors"
	"mime"
	"net/http"

	"github.com/crucial707/radar/internal/service"
)

// ==========================
// Auth Handler
// ==========================
type AuthHandler struct {
	Users *service.UserService
}

// ==========================
// Login (JSON username + password, returns a bearer token)
// ==========================
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	h.login(w, r, input.Username, input.Password)
}

// ==========================
// Token (OAuth2 password form: urlencoded or multipart username + password)
// ==========================
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var err error
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "multipart/form-data" {
		err = r.ParseMultipartForm(multipartMemory)
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			JSONError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		JSONError(w, "invalid form body", http.StatusBadRequest)
		return
	}
	h.login(w, r, r.PostFormValue("username"), r.PostFormValue("password"))
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, username, password string) {
	fields := make(map[string]string)
	if username == "" {
		fields["username"] = "required"
	}
	if password == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		JSONValidationError(w, "validation failed", fields, http.StatusBadRequest)
		return
	}

	sess, err := h.Users.Authenticate(r.Context(), username, password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
