package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/internal/identity/store/drivers/sqlite"
	"github.com/mango3/identity/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Set up a temporary pepper file for testing
	pepperPath := filepath.Join(os.TempDir(), "identity-service-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

// capturedJob records one enqueue call for assertions.
type capturedJob struct {
	Queue   string
	Payload any
}

// captureQueue is an in-memory Enqueuer. Tests that care about the async
// backbone itself live in the jobs package; here we only assert what the
// services hand off.
type captureQueue struct {
	mu   sync.Mutex
	jobs []capturedJob
}

func (q *captureQueue) Enqueue(ctx context.Context, queue string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, capturedJob{Queue: queue, Payload: payload})
	return nil
}

func (q *captureQueue) EnqueueIn(ctx context.Context, tx store.Tx, queue string, payload any) error {
	return q.Enqueue(ctx, queue, payload)
}

// byQueue returns the captured jobs for one queue, in enqueue order.
func (q *captureQueue) byQueue(queue string) []capturedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []capturedJob
	for _, j := range q.jobs {
		if j.Queue == queue {
			out = append(out, j)
		}
	}
	return out
}

var _ Enqueuer = (*captureQueue)(nil)
