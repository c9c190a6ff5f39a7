package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/crucial707/radar/internal/middleware"
	"github.com/crucial707/radar/internal/models"
	"github.com/crucial707/radar/internal/service"
)

// multipartMemory is how much of an upload is buffered in memory before spilling to temp files.
const multipartMemory = 8 << 20

// ==========================
// PostHandler
// ==========================
type PostHandler struct {
	Posts *service.PostService
}

// ==========================
// Create Post (multipart: title?, content, file?)
// ==========================
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			JSONError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		JSONError(w, "expected multipart/form-data body", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := service.CreatePostInput{Content: r.FormValue("content")}
	if vals, ok := r.MultipartForm.Value["title"]; ok && len(vals) > 0 {
		in.Title = &vals[0]
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		JSONError(w, "invalid file upload", http.StatusBadRequest)
		return
	default:
		defer file.Close()
		in.File = &service.Upload{Filename: header.Filename, Body: file}
	}

	post, err := h.Posts.Create(r.Context(), middleware.CurrentUser(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// ==========================
// List Posts (skip, limit)
// ==========================
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	skip, limit := 0, service.DefaultPageLimit
	fields := make(map[string]string)
	if s := r.URL.Query().Get("skip"); s != "" {
		val, err := strconv.Atoi(s)
		if err != nil {
			fields["skip"] = "must be an integer"
		}
		skip = val
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil {
			fields["limit"] = "must be an integer"
		}
		limit = val
	}
	if len(fields) > 0 {
		JSONValidationError(w, "validation failed", fields, http.StatusBadRequest)
		return
	}

	posts, err := h.Posts.List(r.Context(), skip, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// ==========================
// Get Post
// ==========================
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		JSONError(w, "invalid post id", http.StatusBadRequest)
		return
	}

	post, err := h.Posts.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// ==========================
// Update Post (author only)
// ==========================
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		JSONError(w, "invalid post id", http.StatusBadRequest)
		return
	}
	var patch models.PostPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	post, err := h.Posts.Update(r.Context(), middleware.CurrentUser(r.Context()), id, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// ==========================
// Delete Post (author only)
// ==========================
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		JSONError(w, "invalid post id", http.StatusBadRequest)
		return
	}

	if err := h.Posts.Delete(r.Context(), middleware.CurrentUser(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "post deleted successfully"})
}

// ==========================
// List Posts By User
// ==========================
func (h *PostHandler) ListUserPosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := intParam(r, "userId")
	if !ok {
		JSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	posts, err := h.Posts.ListByAuthor(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}
