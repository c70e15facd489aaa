package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluehex/server/internal/notify"
)

type fakeEnqueuer struct {
	tasks  []*asynq.Task
	ctxErr error
	err    error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.ctxErr = ctx.Err()
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "1", Type: task.Type()}, f.err
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeDeliverer struct {
	events []notify.Event
	err    error
}

func (f *fakeDeliverer) Deliver(_ context.Context, event notify.Event) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeSweeper struct {
	n   int64
	err error
}

func (f fakeSweeper) SweepExpiredSessions(context.Context) (int64, error) { return f.n, f.err }

func TestEmailTask_RoundTrip(t *testing.T) {
	event := notify.Event{
		Kind:       notify.KindPasswordReset,
		Email:      "alice@example.com",
		FirstName:  "Alice",
		Token:      "tok",
		OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	task, err := NewEmailTask(event)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeEmail, task.Type())

	got, err := ParseEmailTask(task)
	require.NoError(t, err)
	assert.Equal(t, event, got)
}

func TestEmailTask_RejectsInvalidEvent(t *testing.T) {
	_, err := NewEmailTask(notify.Event{Kind: notify.KindPasswordReset, Email: "a@example.com"})
	assert.Error(t, err)
}

func TestQueue_NotifyDetachesFromCallerCancellation(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := &Queue{client: enq}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Notify(ctx, notify.Event{Kind: notify.KindWelcome, Email: "a@example.com"}))

	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskTypeEmail, enq.tasks[0].Type())
	assert.NoError(t, enq.ctxErr)
}

func TestQueue_NotifyError(t *testing.T) {
	q := &Queue{client: &fakeEnqueuer{err: errors.New("redis down")}}
	err := q.Notify(context.Background(), notify.Event{Kind: notify.KindLogin, Email: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestQueue_EnqueueSweep(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := &Queue{client: enq}
	require.NoError(t, q.EnqueueSweep(context.Background()))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskTypeSessionSweep, enq.tasks[0].Type())
}

func TestHandlers_HandleEmail(t *testing.T) {
	d := &fakeDeliverer{}
	h := NewHandlers(d, fakeSweeper{}, zerolog.Nop())

	task, err := NewEmailTask(notify.Event{Kind: notify.KindWelcome, Email: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, h.HandleEmail(context.Background(), task))
	require.Len(t, d.events, 1)
	assert.Equal(t, "a@example.com", d.events[0].Email)
}

func TestHandlers_HandleEmailFailureSkipsRetry(t *testing.T) {
	d := &fakeDeliverer{err: errors.New("smtp down")}
	h := NewHandlers(d, fakeSweeper{}, zerolog.Nop())

	task, err := NewEmailTask(notify.Event{Kind: notify.KindWelcome, Email: "a@example.com"})
	require.NoError(t, err)
	err = h.HandleEmail(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleEmail(context.Background(), asynq.NewTask(TaskTypeEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlers_HandleSessionSweep(t *testing.T) {
	h := NewHandlers(&fakeDeliverer{}, fakeSweeper{n: 4}, zerolog.Nop())
	assert.NoError(t, h.HandleSessionSweep(context.Background(), NewSessionSweepTask()))

	boom := errors.New("db down")
	h = NewHandlers(&fakeDeliverer{}, fakeSweeper{err: boom}, zerolog.Nop())
	assert.ErrorIs(t, h.HandleSessionSweep(context.Background(), NewSessionSweepTask()), boom)
}

func TestNewWorker_Validation(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	assert.Error(t, err)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "localhost:6379"},
		Logger:    zerolog.Nop(),
		Handlers:  NewHandlers(&fakeDeliverer{}, fakeSweeper{}, zerolog.Nop()),
		SweepCron: "not a schedule",
	})
	assert.Error(t, err)
}
