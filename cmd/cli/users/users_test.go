package users

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crucial707/radar/cmd/cli/config"
	"github.com/crucial707/radar/internal/models"
)

// captureOutput helps capture stdout during command execution.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String()
}

func withAPI(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Setenv("RADAR_API_URL", srv.URL)
	t.Setenv("RADAR_TOKEN_FILE", filepath.Join(t.TempDir(), "token"))
}

func TestLogin_SavesToken(t *testing.T) {
	withAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != "POST" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["username"] != "alice" || in["password"] != "password123" {
			t.Errorf("unexpected credentials: %v", in)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "token_type": "bearer"})
	})

	cmd := loginCmd()
	_ = cmd.Flags().Set("username", "alice")
	_ = cmd.Flags().Set("password", "password123")

	var err error
	out := captureOutput(t, func() { err = cmd.RunE(cmd, nil) })
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Login successful") {
		t.Errorf("unexpected output: %s", out)
	}
	tok, err := config.LoadToken()
	if err != nil || tok != "tok-123" {
		t.Errorf("saved token: %q, %v", tok, err)
	}
}

func TestWhoami_TableOutput(t *testing.T) {
	withAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(models.User{ID: 1, Username: "alice", Email: "alice@example.com", IsActive: true})
	})
	if err := config.SaveToken("tok-123"); err != nil {
		t.Fatal(err)
	}

	cmd := whoamiCmd()
	var err error
	out := captureOutput(t, func() { err = cmd.RunE(cmd, nil) })
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out, "alice") || !strings.Contains(out, "alice@example.com") {
		t.Errorf("expected user in output, got: %s", out)
	}
}

func TestWhoami_NotLoggedIn(t *testing.T) {
	withAPI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	cmd := whoamiCmd()
	if err := cmd.RunE(cmd, nil); err != config.ErrNotLoggedIn {
		t.Errorf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestUpdate_SendsOnlyChangedFields(t *testing.T) {
	withAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		if len(in) != 1 {
			t.Errorf("expected only bio, got %v", in)
		}
		if v, ok := in["bio"]; !ok || v != nil {
			t.Errorf("expected bio: null, got %v", in)
		}
		_ = json.NewEncoder(w).Encode(models.User{ID: 1, Username: "alice"})
	})
	_ = config.SaveToken("tok-123")

	cmd := updateCmd()
	_ = cmd.Flags().Set("clear-bio", "true")
	_ = cmd.Flags().Set("json", "true")

	var err error
	out := captureOutput(t, func() { err = cmd.RunE(cmd, nil) })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	var u models.User
	if err := json.Unmarshal([]byte(out), &u); err != nil || u.Username != "alice" {
		t.Errorf("expected JSON user, got %q (%v)", out, err)
	}
}

func TestRegister_ReportsAPIError(t *testing.T) {
	withAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "username already taken"})
	})

	cmd := registerCmd()
	_ = cmd.Flags().Set("username", "alice")
	_ = cmd.Flags().Set("email", "alice@example.com")
	_ = cmd.Flags().Set("password", "password123")

	err := cmd.RunE(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "username already taken") {
		t.Errorf("expected API error, got %v", err)
	}
}
