package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is a named function run on a cron schedule ("*/5 * * * *", "@every 1h", ...).
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

// Run schedules jobs and blocks until ctx is done, then waits for running
// jobs to finish. A job still running when its next tick comes is skipped,
// and a panicking job is logged rather than crashing the process. An invalid
// spec is reported before anything is scheduled.
func Run(ctx context.Context, jobs []Job) error {
	logger := cronLogger{slog.Default().With("component", "scheduler")}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(j.Spec, func() {
			slog.Debug("scheduler: job started", "job", j.Name)
			j.Run(ctx)
		}); err != nil {
			return fmt.Errorf("scheduler: job %q: invalid spec %q: %w", j.Name, j.Spec, err)
		}
		slog.Info("scheduler: added job", "job", j.Name, "spec", j.Spec)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
