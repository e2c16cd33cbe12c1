package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
)

// ErrDiscard tells the worker the job can never succeed (the referenced
// entity is gone). The job is marked dead without further retries.
var ErrDiscard = errors.New("jobs: discard")

// HandlerFunc processes one job payload. Returning an error schedules a
// retry; wrapping ErrDiscard kills the job instead.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Worker polls each registered queue and runs its handler over due jobs.
// One goroutine per queue; deliveries are at-least-once.
type Worker struct {
	Store    store.Store
	Logger   *slog.Logger
	Handlers map[string]HandlerFunc

	// PollInterval is how often each queue is checked for due jobs.
	// Defaults to 2s.
	PollInterval time.Duration
	// BatchSize bounds how many jobs one poll leases. Defaults to 10.
	BatchSize int
	// LeaseTTL is how long a leased job stays invisible to other workers.
	// Defaults to 1 minute; must exceed the slowest handler.
	LeaseTTL time.Duration
	// MaxAttempts bounds retries before a job is marked dead. Defaults to 10.
	MaxAttempts int

	stopCh chan struct{}
	doneCh chan struct{}
}

func (w *Worker) pollInterval() time.Duration {
	if w.PollInterval <= 0 {
		return 2 * time.Second
	}
	return w.PollInterval
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return 10
	}
	return w.BatchSize
}

func (w *Worker) leaseTTL() time.Duration {
	if w.LeaseTTL <= 0 {
		return time.Minute
	}
	return w.LeaseTTL
}

func (w *Worker) maxAttempts() int {
	if w.MaxAttempts <= 0 {
		return 10
	}
	return w.MaxAttempts
}

// Start launches the per-queue poll loops. Non-blocking; call Stop to shut
// down.
func (w *Worker) Start() {
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	var wg sync.WaitGroup
	for queue, handler := range w.Handlers {
		wg.Add(1)
		go func(queue string, handler HandlerFunc) {
			defer wg.Done()
			w.runQueue(queue, handler)
		}(queue, handler)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	w.Logger.Info("job worker started",
		slog.Int("queues", len(w.Handlers)),
		slog.Duration("poll_interval", w.pollInterval()),
	)
}

// Stop shuts the worker down, waiting for in-flight handlers until ctx is
// done. On timeout the in-flight jobs are abandoned; their leases lapse and
// another worker picks them up.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stopCh)

	select {
	case <-w.doneCh:
		w.Logger.Info("job worker stopped")
		return nil
	case <-ctx.Done():
		w.Logger.Warn("job worker shutdown timed out, abandoning in-flight jobs")
		return ctx.Err()
	}
}

func (w *Worker) runQueue(queue string, handler HandlerFunc) {
	ticker := time.NewTicker(w.pollInterval())
	defer ticker.Stop()

	// Drain whatever is already due before the first tick.
	w.drain(queue, handler)

	for {
		select {
		case <-ticker.C:
			w.drain(queue, handler)
		case <-w.stopCh:
			return
		}
	}
}

// drain leases and processes due jobs until the queue is momentarily empty
// or shutdown is requested.
func (w *Worker) drain(queue string, handler HandlerFunc) {
	ctx := context.Background()

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		jobs, err := w.Store.Jobs().LeaseDueJobs(ctx, queue, w.batchSize(), time.Now().UTC(), w.leaseTTL())
		if err != nil {
			w.Logger.Error("failed to lease jobs",
				slog.String("queue", queue),
				slog.Any("error", err),
			)
			return
		}
		if len(jobs) == 0 {
			return
		}

		for _, job := range jobs {
			w.process(ctx, job, handler)
		}
	}
}

func (w *Worker) process(ctx context.Context, job domain.Job, handler HandlerFunc) {
	log := w.Logger.With(
		slog.String("queue", job.Queue),
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempts),
	)

	err := func() (err error) {
		// The handler must finish within its lease or the job becomes
		// visible to other workers mid-flight.
		hctx, cancel := context.WithTimeout(ctx, w.leaseTTL())
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panicked: %v", r)
			}
		}()
		return handler(hctx, job.Payload)
	}()

	switch {
	case err == nil:
		if err := w.Store.Jobs().CompleteJob(ctx, job.ID); err != nil {
			log.Error("failed to complete job", slog.Any("error", err))
		}

	case errors.Is(err, ErrDiscard):
		log.Warn("discarding job", slog.Any("error", err))
		if err := w.Store.Jobs().KillJob(ctx, job.ID, err.Error()); err != nil {
			log.Error("failed to kill job", slog.Any("error", err))
		}

	case job.Attempts >= w.maxAttempts():
		log.Error("job exhausted retries", slog.Any("error", err))
		if err := w.Store.Jobs().KillJob(ctx, job.ID, err.Error()); err != nil {
			log.Error("failed to kill job", slog.Any("error", err))
		}

	default:
		next := time.Now().UTC().Add(backoff(job.Attempts))
		log.Warn("job failed, scheduling retry",
			slog.Time("next_attempt_at", next),
			slog.Any("error", err),
		)
		if err := w.Store.Jobs().RetryJob(ctx, job.ID, err.Error(), next); err != nil {
			log.Error("failed to schedule retry", slog.Any("error", err))
		}
	}
}

// backoff grows exponentially with the attempt count, capped at an hour.
func backoff(attempts int) time.Duration {
	const base = 30 * time.Second
	const max = time.Hour

	if attempts < 1 {
		attempts = 1
	}
	d := base << (attempts - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}
