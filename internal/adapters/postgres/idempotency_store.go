package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
)

// IdempotencyStore records processed webhook events keyed on (gateway, event_id)
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(db ports.DBPort) *IdempotencyStore {
	return &IdempotencyStore{pool: db.GetDB()}
}

// HasProcessed checks whether the event was recorded
func (s *IdempotencyStore) HasProcessed(ctx context.Context, db ports.DBTX, gateway domain.GatewayKind, eventID string) (bool, error) {
	var exists bool
	err := executor(s.pool, db).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_webhook_events WHERE gateway = $1 AND event_id = $2)`,
		string(gateway), eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return exists, nil
}

// MarkProcessed inserts the idempotency record. A concurrent insert of the same
// key surfaces as domain.ErrEventAlreadyProcessed so the caller rolls back.
func (s *IdempotencyStore) MarkProcessed(ctx context.Context, tx ports.DBTX, event *domain.ProcessedEvent) error {
	_, err := executor(s.pool, tx).Exec(ctx, `
		INSERT INTO processed_webhook_events
			(gateway, event_id, event_type, target_type, target_id, outcome, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(event.Gateway), event.EventID, event.EventType, string(event.TargetType),
		event.TargetID, string(event.Outcome), event.ProcessedAt,
	)
	if isUniqueViolation(err, "") {
		return domain.ErrEventAlreadyProcessed.
			WithDetail("gateway", string(event.Gateway)).
			WithDetail("event_id", event.EventID)
	}
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}
