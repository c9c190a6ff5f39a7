package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/crucial707/radar/internal/attach"
	"github.com/crucial707/radar/internal/auth"
	"github.com/crucial707/radar/internal/middleware"
	"github.com/crucial707/radar/internal/models"
	"github.com/crucial707/radar/internal/repo"
	"github.com/crucial707/radar/internal/service"
	"github.com/crucial707/radar/internal/store/memstore"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

// requestWithChiURLParams returns a request with chi route context and URL params set.
func requestWithChiURLParams(method, path string, body []byte, params map[string]string) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	return r
}

// asUser attaches u the way the auth middleware would.
func asUser(r *http.Request, u *models.User) *http.Request {
	return r.WithContext(middleware.WithUser(r.Context(), u))
}

type testEnv struct {
	users *UserHandler
	auth  *AuthHandler
	posts *PostHandler
	svc   *service.UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client := memstore.New(memstore.DefaultTables())
	files, err := attach.New(t.TempDir(), attach.DefaultURLPrefix)
	if err != nil {
		t.Fatalf("attach.New: %v", err)
	}
	creds := auth.New([]byte("test-secret"), time.Hour, auth.WithBcryptCost(bcrypt.MinCost))
	userRepo, postRepo := repo.NewUserRepo(client), repo.NewPostRepo(client)
	users := service.NewUserService(userRepo, creds)
	return &testEnv{
		users: &UserHandler{Users: users},
		auth:  &AuthHandler{Users: users},
		posts: &PostHandler{Posts: service.NewPostService(postRepo, userRepo, files)},
		svc:   users,
	}
}

func (e *testEnv) register(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), service.RegisterInput{
		Username: name, Email: name + "@example.com", Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return u
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
}

// ==========================
// Users
// ==========================

func TestUserHandler_CreateUser(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"username": "charlie", "email": "c@example.com", "password": "password123"})
	rr := httptest.NewRecorder()
	env.users.CreateUser(rr, httptest.NewRequest("POST", "/users", bytes.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("CreateUser status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	var out map[string]any
	decodeBody(t, rr, &out)
	if out["username"] != "charlie" || out["is_active"] != true {
		t.Errorf("unexpected user: %v", out)
	}
	if _, ok := out["hashed_password"]; ok {
		t.Error("password hash must not be serialized")
	}
	if _, ok := out["password_hash"]; ok {
		t.Error("password hash must not be serialized")
	}
}

func TestUserHandler_CreateUser_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "charlie")

	body, _ := json.Marshal(map[string]string{"username": "other", "email": "charlie@example.com", "password": "password123"})
	rr := httptest.NewRecorder()
	env.users.CreateUser(rr, httptest.NewRequest("POST", "/users", bytes.NewReader(body)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	var out map[string]string
	decodeBody(t, rr, &out)
	if out["error"] != "email already registered" {
		t.Errorf("error: got %q", out["error"])
	}
}

func TestUserHandler_CreateUser_Validation(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.users.CreateUser(rr, httptest.NewRequest("POST", "/users", bytes.NewReader([]byte(`{"username":"x"}`))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	var out struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rr, &out)
	for _, f := range []string{"username", "email", "password"} {
		if out.Fields[f] == "" {
			t.Errorf("expected field error for %s, got %v", f, out.Fields)
		}
	}

	rr = httptest.NewRecorder()
	env.users.CreateUser(rr, httptest.NewRequest("POST", "/users", bytes.NewReader([]byte(`{bad`))))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON status: got %d, want 400", rr.Code)
	}
}

func TestUserHandler_UpdateMe(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	req := asUser(httptest.NewRequest("PUT", "/users/me", bytes.NewReader([]byte(`{"bio":"hi","username":null}`))), alice)
	rr := httptest.NewRecorder()
	env.users.UpdateMe(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var out models.User
	decodeBody(t, rr, &out)
	if out.Username != "alice" || out.Bio == nil || *out.Bio != "hi" {
		t.Errorf("unexpected user: %+v", out)
	}
}

func TestUserHandler_GetMe_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()
	env.users.GetMe(rr, httptest.NewRequest("GET", "/users/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
}

func TestUserHandler_GetUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	rr := httptest.NewRecorder()
	env.users.GetUser(rr, requestWithChiURLParams("GET", "/users/1", nil, map[string]string{"id": "1"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.users.DeleteMe(rr, asUser(httptest.NewRequest("DELETE", "/users/me", nil), alice))
	if rr.Code != http.StatusOK {
		t.Fatalf("DeleteMe status: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.users.GetUser(rr, requestWithChiURLParams("GET", "/users/1", nil, map[string]string{"id": "1"}))
	if rr.Code != http.StatusNotFound {
		t.Errorf("deactivated user: got %d, want 404", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.users.GetUser(rr, requestWithChiURLParams("GET", "/users/abc", nil, map[string]string{"id": "abc"}))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want 400", rr.Code)
	}
}

// ==========================
// Auth
// ==========================

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "password123"})
	rr := httptest.NewRecorder()
	env.auth.Login(rr, httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("Login status: got %d, want 200", rr.Code)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		User        struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	decodeBody(t, rr, &out)
	if out.AccessToken == "" || out.TokenType != "bearer" || out.User.Username != "alice" {
		t.Errorf("unexpected response: %+v", out)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "nope-nope"})
	rr := httptest.NewRecorder()
	env.auth.Login(rr, httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body)))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Login status: got %d, want 401", rr.Code)
	}
	var out map[string]string
	decodeBody(t, rr, &out)
	if out["error"] == "" {
		t.Error("expected error message")
	}
}

func TestAuthHandler_Token(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	form := url.Values{"username": {"alice"}, "password": {"password123"}}
	req := httptest.NewRequest("POST", "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.auth.Token(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Token (urlencoded) status: got %d, want 200", rr.Code)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decodeBody(t, rr, &out)
	if out.AccessToken == "" || out.TokenType != "bearer" {
		t.Errorf("unexpected response: %+v", out)
	}

	body, ct := multipartBody(t, map[string]string{"username": "alice", "password": "password123"}, "", "")
	req = httptest.NewRequest("POST", "/auth/token", body)
	req.Header.Set("Content-Type", ct)
	rr = httptest.NewRecorder()
	env.auth.Token(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Token (multipart) status: got %d, want 200", rr.Code)
	}

	form = url.Values{"username": {"alice"}}
	req = httptest.NewRequest("POST", "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	env.auth.Token(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Token without password: got %d, want 400", rr.Code)
	}

	form = url.Values{"username": {"alice"}, "password": {"wrong-password"}}
	req = httptest.NewRequest("POST", "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	env.auth.Token(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Token with wrong password: got %d, want 401", rr.Code)
	}
}

// ==========================
// Posts
// ==========================

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestPostHandler_CreatePost(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	body, ct := multipartBody(t, map[string]string{"title": "Hello", "content": "world"}, "pic.png", "data")
	req := asUser(httptest.NewRequest("POST", "/posts", body), alice)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	env.posts.CreatePost(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var out models.Post
	decodeBody(t, rr, &out)
	if out.Title == nil || *out.Title != "Hello" || out.Content != "world" {
		t.Errorf("unexpected post: %+v", out)
	}
	if out.ImageURL == nil || out.Author == nil || out.Author.Username != "alice" {
		t.Errorf("expected image and author: %+v", out)
	}
}

func TestPostHandler_CreatePost_Errors(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	body, ct := multipartBody(t, map[string]string{"title": "no content"}, "", "")
	req := asUser(httptest.NewRequest("POST", "/posts", body), alice)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	env.posts.CreatePost(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing content: got %d, want 400", rr.Code)
	}

	req = asUser(httptest.NewRequest("POST", "/posts", bytes.NewReader([]byte(`{"content":"x"}`))), alice)
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	env.posts.CreatePost(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("json body: got %d, want 400", rr.Code)
	}
}

func createPost(t *testing.T, env *testEnv, u *models.User, content string) int {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"content": content}, "", "")
	req := asUser(httptest.NewRequest("POST", "/posts", body), u)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	env.posts.CreatePost(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("create post: %d %s", rr.Code, rr.Body.String())
	}
	var out models.Post
	decodeBody(t, rr, &out)
	return out.ID
}

func TestPostHandler_ListPosts(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	first := createPost(t, env, alice, "one")
	second := createPost(t, env, alice, "two")

	rr := httptest.NewRecorder()
	env.posts.ListPosts(rr, httptest.NewRequest("GET", "/posts?limit=1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var page []models.Post
	decodeBody(t, rr, &page)
	if len(page) != 1 || page[0].ID != second {
		t.Errorf("first page: %+v", page)
	}

	rr = httptest.NewRecorder()
	env.posts.ListPosts(rr, httptest.NewRequest("GET", "/posts?skip=1&limit=1", nil))
	decodeBody(t, rr, &page)
	if len(page) != 1 || page[0].ID != first {
		t.Errorf("second page: %+v", page)
	}

	for _, q := range []string{"limit=0", "limit=101", "skip=-1", "limit=abc"} {
		rr = httptest.NewRecorder()
		env.posts.ListPosts(rr, httptest.NewRequest("GET", "/posts?"+q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", q, rr.Code)
		}
	}
}

func TestPostHandler_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	id := createPost(t, env, alice, "orig")
	idStr := map[string]string{"id": "1"}
	if id != 1 {
		t.Fatalf("expected first post id 1, got %d", id)
	}

	rr := httptest.NewRecorder()
	env.posts.UpdatePost(rr, asUser(requestWithChiURLParams("PUT", "/posts/1", []byte(`{"content":"stolen"}`), idStr), bob))
	if rr.Code != http.StatusForbidden {
		t.Errorf("non-author update: got %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.posts.UpdatePost(rr, asUser(requestWithChiURLParams("PUT", "/posts/1", []byte(`{"content":"edited"}`), idStr), alice))
	if rr.Code != http.StatusOK {
		t.Fatalf("author update: got %d (%s)", rr.Code, rr.Body.String())
	}
	var out models.Post
	decodeBody(t, rr, &out)
	if out.Content != "edited" || out.UpdatedAt == nil {
		t.Errorf("unexpected post: %+v", out)
	}

	rr = httptest.NewRecorder()
	env.posts.DeletePost(rr, asUser(requestWithChiURLParams("DELETE", "/posts/1", nil, idStr), bob))
	if rr.Code != http.StatusForbidden {
		t.Errorf("non-author delete: got %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.posts.DeletePost(rr, asUser(requestWithChiURLParams("DELETE", "/posts/1", nil, idStr), alice))
	if rr.Code != http.StatusOK {
		t.Errorf("author delete: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.posts.GetPost(rr, requestWithChiURLParams("GET", "/posts/1", nil, idStr))
	if rr.Code != http.StatusNotFound {
		t.Errorf("deleted post: got %d, want 404", rr.Code)
	}
}

func TestPostHandler_ListUserPosts(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	createPost(t, env, alice, "a")

	rr := httptest.NewRecorder()
	env.posts.ListUserPosts(rr, requestWithChiURLParams("GET", "/posts/user/1", nil, map[string]string{"userId": "1"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var posts []models.Post
	decodeBody(t, rr, &posts)
	if len(posts) != 1 || posts[0].Author == nil || posts[0].Author.ID != alice.ID {
		t.Errorf("unexpected posts: %+v", posts)
	}

	rr = httptest.NewRecorder()
	env.posts.ListUserPosts(rr, requestWithChiURLParams("GET", "/posts/user/99", nil, map[string]string{"userId": "99"}))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown user: got %d, want 404", rr.Code)
	}
}
