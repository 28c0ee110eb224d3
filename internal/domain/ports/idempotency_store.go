package ports

import (
	"context"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
)

// IdempotencyStore remembers which gateway events were already handled
type IdempotencyStore interface {
	// HasProcessed checks whether the gateway event id was recorded
	HasProcessed(ctx context.Context, db DBTX, gateway domain.GatewayKind, eventID string) (bool, error)

	// MarkProcessed records the event. It must run in the same transaction as the
	// entity write it accompanies. Returns domain.ErrEventAlreadyProcessed when a
	// concurrent delivery recorded it first.
	MarkProcessed(ctx context.Context, tx DBTX, event *domain.ProcessedEvent) error
}
