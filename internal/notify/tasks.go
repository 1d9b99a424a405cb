package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// TaskDomainEventEmail is the asynq task type for transactional email delivery.
const TaskDomainEventEmail = "email:domain_event"

// EmailTaskPayload carries a persisted domain event to the worker process.
type EmailTaskPayload struct {
	EventID     string          `json:"eventId"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Enqueuer forwards domain events to the background worker as asynq tasks.
// It implements the events.Notifier interface so the bus can fan out to it.
type Enqueuer struct {
	Client       *asynq.Client
	Log          zerolog.Logger
	Queue        string
	MaxRetry     int
	TopicToggles map[string]bool
}

// Notify enqueues an email task for the event. Disabled topics are skipped.
func (e Enqueuer) Notify(ctx context.Context, event repo.DomainEvent) error {
	if e.Client == nil {
		return nil
	}
	if e.TopicToggles != nil {
		if enabled, ok := e.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := EmailTaskPayload{
		EventID:     repo.UUIDString(event.ID),
		Topic:       event.Topic,
		AggregateID: repo.UUIDString(event.AggregateID),
		Payload:     json.RawMessage(event.Payload),
		OccurredAt:  event.OccurredAt.Time,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encode task: %w", err)
	}
	opts := []asynq.Option{asynq.TaskID(payload.EventID)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	task := asynq.NewTask(TaskDomainEventEmail, encoded, opts...)
	info, err := e.Client.EnqueueContext(ctx, task)
	if err != nil {
		// A duplicate task id means the event was already enqueued.
		if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("notify: enqueue %s: %w", event.Topic, err)
	}
	e.Log.Debug().
		Str("task_id", info.ID).
		Str("topic", event.Topic).
		Msg("email task enqueued")
	return nil
}
