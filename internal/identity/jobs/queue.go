// Package jobs is the async backbone: a durable queue in the primary store,
// per-queue workers and the handlers that run behind the request path
// (emails, geolocation, webhook deliveries, cascades).
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/idx"
)

// Queue is the producer side of the backbone. Enqueued jobs are durable
// before the call returns.
type Queue struct {
	Store store.Store
}

func (q *Queue) Enqueue(ctx context.Context, queue string, payload any) error {
	return enqueue(ctx, q.Store.Jobs(), queue, payload)
}

func (q *Queue) EnqueueIn(ctx context.Context, tx store.Tx, queue string, payload any) error {
	return enqueue(ctx, tx.Jobs(), queue, payload)
}

func enqueue(ctx context.Context, repo store.Jobs, queue string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", queue, err)
	}

	now := time.Now().UTC()
	return repo.EnqueueJob(ctx, domain.Job{
		ID:            idx.New().String(),
		Queue:         queue,
		Payload:       encoded,
		Status:        domain.JobPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

var _ service.Enqueuer = (*Queue)(nil)
