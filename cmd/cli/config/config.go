package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultAPIURL = "http://localhost:8080"
	tokenFileName = ".radar_token"
)

// ErrNotLoggedIn is returned when no token has been saved.
var ErrNotLoggedIn = errors.New("not logged in: run `radar users login` first")

// APIURL returns the base URL for the Radar API.
// It can be overridden with the RADAR_API_URL environment variable.
func APIURL() string {
	if v := os.Getenv("RADAR_API_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return defaultAPIURL
}

// TokenPath is ~/.radar_token unless RADAR_TOKEN_FILE is set.
func TokenPath() string {
	if v := os.Getenv("RADAR_TOKEN_FILE"); v != "" {
		return v
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, tokenFileName)
}

func SaveToken(token string) error {
	return os.WriteFile(TokenPath(), []byte(token), 0o600)
}

func LoadToken() (string, error) {
	data, err := os.ReadFile(TokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotLoggedIn
	}
	if err != nil {
		return "", err
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNotLoggedIn
	}
	return tok, nil
}

// ClearToken removes the saved token. It reports false when there was none.
func ClearToken() (bool, error) {
	err := os.Remove(TokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
