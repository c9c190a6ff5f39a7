package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/crucial707/radar/cmd/cli/config"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("status %d: %s", e.Status, e.Message)
	for k, v := range e.Fields {
		msg += fmt.Sprintf("\n  %s: %s", k, v)
	}
	return msg
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New targets config.APIURL() and attaches the saved token when there is one.
func New() *Client {
	tok, _ := config.LoadToken()
	return &Client{BaseURL: config.APIURL(), Token: tok, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// RequireToken fails when no token is saved.
func (c *Client) RequireToken() error {
	if c.Token == "" {
		return config.ErrNotLoggedIn
	}
	return nil
}

// JSON sends payload (if non-nil) as JSON and decodes the response into out (if non-nil).
func (c *Client) JSON(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// Multipart posts form fields and an optional file under the "file" field.
func (c *Client) Multipart(path string, fields map[string]string, filePath string, out interface{}) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if filePath != "" {
		f, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer f.Close()
		fw, err := mw.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, f); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
		var e struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message, apiErr.Fields = e.Error, e.Fields
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
