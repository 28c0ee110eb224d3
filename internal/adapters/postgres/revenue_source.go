package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
)

// eligibleRevenueQuery selects rental/sale records whose payment succeeded and that
// no live payout includes yet, with the completed refund sum per transaction.
const eligibleRevenueQuery = `
	SELECT rr.id, rr.occurred_at, ft.id, ft.amount, ft.currency, ft.status,
	       COALESCE((SELECT sum(rf.amount) FROM refunds rf
	                 WHERE rf.transaction_id = ft.id AND rf.status = 'COMPLETED'), 0) AS refunded
	FROM revenue_records rr
	JOIN financial_transactions ft ON ft.id = rr.financial_transaction_id
	WHERE rr.scope_type = $1 AND rr.scope_id = $2
	  AND rr.occurred_at >= $3 AND rr.occurred_at < $4
	  AND ft.deleted_at IS NULL
	  AND ft.status IN ('SUCCEEDED', 'PARTIALLY_REFUNDED')
	  AND NOT EXISTS (
	      SELECT 1 FROM payout_items pi
	      JOIN payouts p ON p.id = pi.payout_id
	      WHERE pi.source_transaction_id = ft.id AND p.status <> 'CANCELLED')
	ORDER BY rr.occurred_at, rr.id`

// RevenueSource reads revenue records for payout calculation
type RevenueSource struct {
	pool *pgxpool.Pool
}

// NewRevenueSource creates a new read-only revenue source
func NewRevenueSource(db ports.DBPort) *RevenueSource {
	return &RevenueSource{pool: db.GetDB()}
}

// ListEligible returns the scope's eligible records in [start, end)
func (s *RevenueSource) ListEligible(ctx context.Context, db ports.DBTX, scope domain.PayoutScope, start, end time.Time) ([]domain.RevenueTransaction, error) {
	rows, err := executor(s.pool, db).Query(ctx, eligibleRevenueQuery, string(scope.Type), scope.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list eligible revenue: %w", err)
	}
	defer rows.Close()

	var result []domain.RevenueTransaction
	for rows.Next() {
		var (
			rt               domain.RevenueTransaction
			amount, refunded pgtype.Numeric
			status           string
		)
		if err := rows.Scan(&rt.RevenueRecordID, &rt.OccurredAt, &rt.TransactionID,
			&amount, &rt.Currency, &status, &refunded); err != nil {
			return nil, fmt.Errorf("scan eligible revenue: %w", err)
		}
		if rt.Amount, err = pgNumericToDecimal(amount); err != nil {
			return nil, err
		}
		if rt.RefundedAmount, err = pgNumericToDecimal(refunded); err != nil {
			return nil, err
		}
		rt.Status = domain.PaymentStatus(status)
		rt.Scope = scope
		result = append(result, rt)
	}
	return result, rows.Err()
}

// ListScopes returns scopes with revenue records in [start, end)
func (s *RevenueSource) ListScopes(ctx context.Context, db ports.DBTX, start, end time.Time) ([]domain.PayoutScope, error) {
	rows, err := executor(s.pool, db).Query(ctx, `
		SELECT DISTINCT rr.scope_type, rr.scope_id
		FROM revenue_records rr
		JOIN financial_transactions ft ON ft.id = rr.financial_transaction_id
		WHERE rr.occurred_at >= $1 AND rr.occurred_at < $2
		  AND ft.status IN ('SUCCEEDED', 'PARTIALLY_REFUNDED')
		ORDER BY rr.scope_type, rr.scope_id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list revenue scopes: %w", err)
	}
	defer rows.Close()

	var scopes []domain.PayoutScope
	for rows.Next() {
		var scopeType, scopeID string
		if err := rows.Scan(&scopeType, &scopeID); err != nil {
			return nil, fmt.Errorf("scan revenue scope: %w", err)
		}
		scopes = append(scopes, domain.PayoutScope{Type: domain.ScopeType(scopeType), ID: scopeID})
	}
	return scopes, rows.Err()
}
