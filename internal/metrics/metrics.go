package metrics

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, path, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts HTTP requests by method, path, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// PostsCreated counts posts persisted through the API.
	PostsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posts_created_total",
			Help: "Total number of posts created",
		},
	)

	// AttachmentsStored counts image files written to the upload directory.
	AttachmentsStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attachments_stored_total",
			Help: "Total number of attachments stored",
		},
	)

	// AttachmentsSwept counts orphaned uploads removed by the sweeper.
	AttachmentsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attachments_swept_total",
			Help: "Total number of orphaned attachments removed",
		},
	)
)

var (
	numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	initOnce           sync.Once
)

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestDuration, RequestTotal, PostsCreated, AttachmentsStored, AttachmentsSwept)
	})
}

// NormalizePath reduces cardinality by replacing numeric path segments with {id}.
// E.g. /posts/123 -> /posts/{id}, /posts/user/7 -> /posts/user/{id}.
func NormalizePath(path string) string {
	for {
		next := numericPathSegment.ReplaceAllString(path, "/{id}$1")
		if next == path {
			return next
		}
		path = next
	}
}

// RecordRequest records duration and count for an HTTP request. Call from middleware with method, path, statusCode, duration.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	path = NormalizePath(path)
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, path, status).Inc()
}

func IncPostsCreated() {
	PostsCreated.Inc()
}

func IncAttachmentsStored() {
	AttachmentsStored.Inc()
}

// AddAttachmentsSwept adds n removed files (call after each sweep).
func AddAttachmentsSwept(n int) {
	if n > 0 {
		AttachmentsSwept.Add(float64(n))
	}
}
