package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/stretchr/testify/require"
)

func TestQueue_Enqueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	queue := &Queue{Store: st}

	require.NoError(t, queue.Enqueue(ctx, domain.QueueNewUser, domain.NewUserPayload{UserID: "u1"}))

	jobs, err := st.Jobs().LeaseDueJobs(ctx, domain.QueueNewUser, 10, time.Now().UTC(), time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.JSONEq(t, `{"user_id":"u1"}`, string(jobs[0].Payload))
}

func TestWorker_Drain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("successful jobs are completed", func(t *testing.T) {
		st := newTestStore(t)
		queue := &Queue{Store: st}
		require.NoError(t, queue.Enqueue(ctx, "q", map[string]string{"k": "v"}))

		var handled int
		w := &Worker{Store: st, Logger: testLogger()}
		w.drain("q", func(ctx context.Context, payload []byte) error {
			handled++
			return nil
		})

		require.Equal(t, 1, handled)

		done, err := st.Jobs().CountJobs(ctx, "q", domain.JobDone)
		require.NoError(t, err)
		require.Equal(t, 1, done)
	})

	t.Run("failures are retried with backoff", func(t *testing.T) {
		st := newTestStore(t)
		queue := &Queue{Store: st}
		require.NoError(t, queue.Enqueue(ctx, "q", map[string]string{}))

		w := &Worker{Store: st, Logger: testLogger()}
		w.drain("q", func(ctx context.Context, payload []byte) error {
			return errors.New("smtp unavailable")
		})

		pending, err := st.Jobs().CountJobs(ctx, "q", domain.JobPending)
		require.NoError(t, err)
		require.Equal(t, 1, pending)

		// The retry is parked in the future, not immediately due again.
		due, err := st.Jobs().LeaseDueJobs(ctx, "q", 10, time.Now().UTC(), time.Minute)
		require.NoError(t, err)
		require.Empty(t, due)

		later, err := st.Jobs().LeaseDueJobs(ctx, "q", 10, time.Now().UTC().Add(31*time.Second), time.Minute)
		require.NoError(t, err)
		require.Len(t, later, 1)
		require.Equal(t, "smtp unavailable", later[0].LastError)
	})

	t.Run("discard errors kill the job", func(t *testing.T) {
		st := newTestStore(t)
		queue := &Queue{Store: st}
		require.NoError(t, queue.Enqueue(ctx, "q", map[string]string{}))

		w := &Worker{Store: st, Logger: testLogger()}
		w.drain("q", func(ctx context.Context, payload []byte) error {
			return fmt.Errorf("%w: entity gone", ErrDiscard)
		})

		dead, err := st.Jobs().CountJobs(ctx, "q", domain.JobDead)
		require.NoError(t, err)
		require.Equal(t, 1, dead)
	})

	t.Run("exhausted retries kill the job", func(t *testing.T) {
		st := newTestStore(t)
		queue := &Queue{Store: st}
		require.NoError(t, queue.Enqueue(ctx, "q", map[string]string{}))

		w := &Worker{Store: st, Logger: testLogger(), MaxAttempts: 1}
		w.drain("q", func(ctx context.Context, payload []byte) error {
			return errors.New("permanent failure")
		})

		dead, err := st.Jobs().CountJobs(ctx, "q", domain.JobDead)
		require.NoError(t, err)
		require.Equal(t, 1, dead)
	})

	t.Run("panics are contained and retried", func(t *testing.T) {
		st := newTestStore(t)
		queue := &Queue{Store: st}
		require.NoError(t, queue.Enqueue(ctx, "q", map[string]string{}))

		w := &Worker{Store: st, Logger: testLogger()}
		require.NotPanics(t, func() {
			w.drain("q", func(ctx context.Context, payload []byte) error {
				panic("boom")
			})
		})

		pending, err := st.Jobs().CountJobs(ctx, "q", domain.JobPending)
		require.NoError(t, err)
		require.Equal(t, 1, pending)
	})
}

func TestWorker_StartStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	queue := &Queue{Store: st}
	require.NoError(t, queue.Enqueue(ctx, "q", map[string]string{}))

	processed := make(chan struct{}, 1)
	w := &Worker{
		Store:        st,
		Logger:       testLogger(),
		PollInterval: 10 * time.Millisecond,
		Handlers: map[string]HandlerFunc{
			"q": func(ctx context.Context, payload []byte) error {
				select {
				case processed <- struct{}{}:
				default:
				}
				return nil
			},
		},
	}

	w.Start()
	defer func() { _ = w.Stop(ctx) }()

	select {
	case <-processed:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never processed the job")
	}
}

func TestWorker_StopGracePeriod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	queue := &Queue{Store: st}
	require.NoError(t, queue.Enqueue(ctx, "q", map[string]string{}))

	started := make(chan struct{})
	release := make(chan struct{})
	w := &Worker{
		Store:        st,
		Logger:       testLogger(),
		PollInterval: 10 * time.Millisecond,
		Handlers: map[string]HandlerFunc{
			"q": func(ctx context.Context, payload []byte) error {
				close(started)
				<-release
				return nil
			},
		},
	}

	w.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	// The handler is wedged; Stop must give up at the deadline instead of
	// waiting forever.
	stopCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Stop(stopCtx) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return at the grace deadline")
	}

	close(release)
}

func TestWorker_HandlerDeadline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	queue := &Queue{Store: st}
	require.NoError(t, queue.Enqueue(ctx, "q", map[string]string{}))

	w := &Worker{
		Store:    st,
		Logger:   testLogger(),
		LeaseTTL: time.Minute,
	}

	sawDeadline := make(chan bool, 1)
	w.drain("q", func(ctx context.Context, payload []byte) error {
		_, ok := ctx.Deadline()
		sawDeadline <- ok
		return nil
	})

	require.True(t, <-sawDeadline, "handler context carries no deadline")
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	require.Equal(t, 30*time.Second, backoff(0))
	require.Equal(t, 30*time.Second, backoff(1))
	require.Equal(t, time.Minute, backoff(2))
	require.Equal(t, 2*time.Minute, backoff(3))
	require.Equal(t, 32*time.Minute, backoff(7))
	require.Equal(t, time.Hour, backoff(8))
	require.Equal(t, time.Hour, backoff(100))
}
