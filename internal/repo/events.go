package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// Events persists domain events.
type Events struct {
	DB DBTX
}

// InsertDomainEvent appends an event and returns the stored row.
func (r Events) InsertDomainEvent(ctx context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (DomainEvent, error) {
	var ev DomainEvent
	err := r.DB.QueryRow(ctx, `INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1,$2,$3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		topic, aggregateID, payload).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}
