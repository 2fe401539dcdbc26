package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const (
	DefaultMaxAttempts = 5
	DefaultInterval    = 5 * time.Second
	claimLease         = time.Minute
)

// JobQueue is the persistent queue the worker drains.
type JobQueue interface {
	Claim(ctx context.Context, now time.Time, lease time.Duration) (*domain.Job, error)
	Complete(ctx context.Context, job *domain.Job) error
	Fail(ctx context.Context, job *domain.Job) error
	Retry(ctx context.Context, job *domain.Job, nextRun time.Time) error
}

// Sender delivers one job payload.
type Sender interface {
	Send(ctx context.Context, url string, payload []byte) error
}

// WebhookWorker polls the queue and delivers due jobs, retrying failures with
// a growing delay until MaxAttempts is reached.
type WebhookWorker struct {
	Jobs        JobQueue
	Sender      Sender
	Interval    time.Duration
	MaxAttempts int
	Now         func() time.Time
	Logger      *slog.Logger
}

// Start runs the polling loop in a goroutine until ctx is cancelled.
// The returned channel is closed when the loop has exited.
func (w *WebhookWorker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	go func() {
		defer close(done)
		w.logger().Info("Webhook worker started")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			// Drain everything that is due before sleeping again.
			for {
				processed, err := w.ProcessOne(ctx)
				if err != nil {
					w.logger().Error("Worker: failed to process job", "error", err)
				}
				if !processed || ctx.Err() != nil {
					break
				}
			}

			select {
			case <-ctx.Done():
				w.logger().Info("Webhook worker stopped")
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}

// ProcessOne delivers at most one due job. It reports whether a job was handled.
func (w *WebhookWorker) ProcessOne(ctx context.Context) (bool, error) {
	now := w.now()
	job, err := w.Jobs.Claim(ctx, now, claimLease)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log := w.logger().With("job_id", job.ID, "url", job.URL)
	log.Info("Worker: Processing job", "attempts", job.Attempts)

	sendErr := w.Sender.Send(ctx, job.URL, job.Payload)
	if sendErr == nil {
		log.Info("Worker: Webhook sent successfully")
		return true, w.Jobs.Complete(ctx, job)
	}

	log.Error("Worker: Webhook failed", "error", sendErr, "attempts", job.Attempts)
	if job.Attempts+1 >= w.maxAttempts() {
		log.Error("Worker: Job marked as FAILED (max attempts reached)")
		return true, w.Jobs.Fail(ctx, job)
	}

	nextRun := now.Add(time.Duration(job.Attempts*10+10) * time.Second)
	log.Info("Worker: Scheduled retry", "next_run", nextRun)
	return true, w.Jobs.Retry(ctx, job, nextRun)
}

func (w *WebhookWorker) maxAttempts() int {
	if w.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return w.MaxAttempts
}

func (w *WebhookWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *WebhookWorker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
