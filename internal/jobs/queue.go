package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bluehex/server/internal/notify"
)

const enqueueTimeout = 2 * time.Second

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Queue is a notify.Notifier that hands events to the worker through Redis.
type Queue struct {
	client enqueuer
}

// NewQueue constructs a Queue.
func NewQueue(redisOpts asynq.RedisClientOpt) *Queue {
	return &Queue{client: asynq.NewClient(redisOpts)}
}

// Notify enqueues event. It is detached from the caller's cancellation and
// bounded by a short timeout so a slow Redis cannot stall the request.
func (q *Queue) Notify(ctx context.Context, event notify.Event) error {
	task, err := NewEmailTask(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", event.Kind, err)
	}
	return nil
}

// EnqueueSweep requests a one-off session sweep.
func (q *Queue) EnqueueSweep(ctx context.Context) error {
	if _, err := q.client.EnqueueContext(ctx, NewSessionSweepTask()); err != nil {
		return fmt.Errorf("enqueue sweep: %w", err)
	}
	return nil
}

// Close releases client resources.
func (q *Queue) Close() error {
	return q.client.Close()
}
