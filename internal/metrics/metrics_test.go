package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/posts/123":     "/posts/{id}",
		"/posts/user/7":  "/posts/user/{id}",
		"/users/me":      "/users/me",
		"/posts/12/13":   "/posts/{id}/{id}",
		"/health":        "/health",
		"/uploads/a.png": "/uploads/a.png",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestAddAttachmentsSwept(t *testing.T) {
	before := counterValue(t, AttachmentsSwept)
	AddAttachmentsSwept(0)
	AddAttachmentsSwept(3)
	if got := counterValue(t, AttachmentsSwept) - before; got != 3 {
		t.Errorf("swept delta: got %v, want 3", got)
	}
}
