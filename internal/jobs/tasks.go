// Package jobs moves notification delivery and the session sweep onto an
// asynq queue backed by Redis.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/bluehex/server/internal/notify"
)

const (
	// QueueNotifications carries email tasks.
	QueueNotifications = "notifications"
	// QueueMaintenance carries periodic housekeeping tasks.
	QueueMaintenance = "maintenance"

	// TaskTypeEmail delivers one notification event.
	TaskTypeEmail = "notify:email"
	// TaskTypeSessionSweep removes expired sessions.
	TaskTypeSessionSweep = "session:sweep"
)

// NewEmailTask constructs an email task. Failed sends are not retried.
func NewEmailTask(event notify.Event) (*asynq.Task, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return asynq.NewTask(TaskTypeEmail, data, asynq.MaxRetry(0), asynq.Queue(QueueNotifications)), nil
}

// ParseEmailTask decodes the event carried by an email task.
func ParseEmailTask(task *asynq.Task) (notify.Event, error) {
	var event notify.Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return notify.Event{}, fmt.Errorf("decode email payload: %w", err)
	}
	return event, nil
}

// NewSessionSweepTask constructs a sweep task.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionSweep, nil, asynq.MaxRetry(0), asynq.Queue(QueueMaintenance))
}
