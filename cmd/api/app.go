package main

import (
	"context"
	"log/slog"

	"github.com/crucial707/radar/internal/attach"
	"github.com/crucial707/radar/internal/auth"
	"github.com/crucial707/radar/internal/config"
	"github.com/crucial707/radar/internal/middleware"
	"github.com/crucial707/radar/internal/repo"
	"github.com/crucial707/radar/internal/scheduler"
	"github.com/crucial707/radar/internal/service"
	"github.com/crucial707/radar/internal/store"
)

// app holds everything the router and background jobs share.
type app struct {
	creds       *auth.Credentials
	users       *repo.UserRepo
	files       *attach.Store
	userSvc     *service.UserService
	postSvc     *service.PostService
	authLimiter *middleware.IPRateLimiter
}

func newApp(client store.Client, cfg config.Config) (*app, error) {
	files, err := attach.New(cfg.UploadDir, attach.DefaultURLPrefix)
	if err != nil {
		return nil, err
	}
	creds := auth.New([]byte(cfg.JWTSecret), cfg.TokenTTL(),
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithBcryptCost(cfg.BcryptCost),
	)
	users := repo.NewUserRepo(client)
	posts := repo.NewPostRepo(client)

	return &app{
		creds:       creds,
		users:       users,
		files:       files,
		userSvc:     service.NewUserService(users, creds),
		postSvc:     service.NewPostService(posts, users, files),
		authLimiter: middleware.AuthRateLimiter(cfg.AuthRatePerMinute, cfg.AuthRateBurst),
	}, nil
}

// jobs are the background tasks run by the scheduler.
func (a *app) jobs(cfg config.Config) []scheduler.Job {
	jobs := []scheduler.Job{{
		Name: "ratelimit-prune",
		Spec: "@every 10m",
		Run: func(context.Context) {
			if n := a.authLimiter.Prune(); n > 0 {
				slog.Debug("pruned idle rate limit buckets", "count", n)
			}
		},
	}}
	if cfg.SweepCron != "" {
		jobs = append(jobs, scheduler.Job{
			Name: "attachment-sweep",
			Spec: cfg.SweepCron,
			Run: func(ctx context.Context) {
				n, err := a.postSvc.SweepOrphans(ctx, cfg.SweepGrace)
				if err != nil {
					slog.Error("attachment sweep failed", "removed", n, "error", err)
					return
				}
				slog.Info("attachment sweep finished", "removed", n)
			},
		})
	}
	return jobs
}
