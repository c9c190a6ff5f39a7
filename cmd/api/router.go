package main

import (
	"net/http"
	"time"

	"github.com/crucial707/radar/internal/config"
	"github.com/crucial707/radar/internal/handlers"
	"github.com/crucial707/radar/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newRouter(a *app, cfg config.Config) http.Handler {
	r := chi.NewRouter()

	var hsts time.Duration
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		hsts = 365 * 24 * time.Hour
	}

	if cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLog(nil))
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders(hsts))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.BodyLimit(middleware.DefaultMaxBodyBytes, cfg.UploadMaxBytes()))

	userHandler := &handlers.UserHandler{Users: a.userSvc}
	authHandler := &handlers.AuthHandler{Users: a.userSvc}
	postHandler := &handlers.PostHandler{Posts: a.postSvc}
	requireAuth := middleware.Authenticate(a.creds, a.users)

	// ==========================
	// Ambient
	// ==========================
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle(a.files.URLPrefix()+"*", a.files.Handler())

	// ==========================
	// Auth
	// ==========================
	r.Route("/auth", func(r chi.Router) {
		r.Use(a.authLimiter.Middleware)
		r.Post("/token", authHandler.Token)
		r.Post("/login", authHandler.Login)
	})

	// ==========================
	// Users
	// ==========================
	r.Route("/users", func(r chi.Router) {
		r.With(a.authLimiter.Middleware).Post("/", userHandler.CreateUser)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", userHandler.GetMe)
			r.Put("/me", userHandler.UpdateMe)
			r.Delete("/me", userHandler.DeleteMe)
		})
		r.Get("/{id}", userHandler.GetUser)
	})

	// ==========================
	// Posts
	// ==========================
	r.Route("/posts", func(r chi.Router) {
		r.Get("/", postHandler.ListPosts)
		r.Get("/{id}", postHandler.GetPost)
		r.Get("/user/{userId}", postHandler.ListUserPosts)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", postHandler.CreatePost)
			r.Put("/{id}", postHandler.UpdatePost)
			r.Delete("/{id}", postHandler.DeletePost)
		})
	})

	return r
}
