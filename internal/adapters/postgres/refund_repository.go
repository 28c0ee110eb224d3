package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
)

const refundColumns = `id, external_id, transaction_id, amount, currency, reason_code, status,
	gateway_refund_id, created_at, updated_at, completed_at`

// RefundRepository implements ports.RefundRepository with pgx
type RefundRepository struct {
	pool *pgxpool.Pool
}

// NewRefundRepository creates a new refund repository
func NewRefundRepository(db ports.DBPort) *RefundRepository {
	return &RefundRepository{pool: db.GetDB()}
}

// Create inserts a refund
func (r *RefundRepository) Create(ctx context.Context, tx ports.DBTX, refund *domain.Refund) error {
	amount, err := decimalToPgNumeric(refund.Amount)
	if err != nil {
		return err
	}
	_, err = executor(r.pool, tx).Exec(ctx, `
		INSERT INTO refunds (`+refundColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		refund.ID, refund.ExternalID, refund.TransactionID, amount, refund.Currency, refund.ReasonCode,
		string(refund.Status), nullTextPtr(refund.GatewayRefundID),
		refund.CreatedAt, refund.UpdatedAt, nullTime(refund.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

// GetByExternalID retrieves a refund by its external ID
func (r *RefundRepository) GetByExternalID(ctx context.Context, db ports.DBTX, externalID uuid.UUID) (*domain.Refund, error) {
	row := executor(r.pool, db).QueryRow(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE external_id = $1`, externalID)
	refund, err := scanRefund(row)
	if err != nil {
		return nil, fmt.Errorf("get refund: %w", err)
	}
	return refund, nil
}

// ListByTransaction returns all refunds of a transaction, oldest first
func (r *RefundRepository) ListByTransaction(ctx context.Context, db ports.DBTX, transactionID uuid.UUID) ([]*domain.Refund, error) {
	rows, err := executor(r.pool, db).Query(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE transaction_id = $1 ORDER BY created_at, id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*domain.Refund
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		refunds = append(refunds, refund)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	return refunds, nil
}

// UpdateStatus writes the refund status fields
func (r *RefundRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, refund *domain.Refund) error {
	tag, err := executor(r.pool, tx).Exec(ctx, `
		UPDATE refunds
		SET status = $2, gateway_refund_id = $3, updated_at = $4, completed_at = $5
		WHERE id = $1`,
		refund.ID, string(refund.Status), nullTextPtr(refund.GatewayRefundID),
		refund.UpdatedAt, nullTime(refund.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRefundNotFound
	}
	return nil
}

func scanRefund(row pgx.Row) (*domain.Refund, error) {
	var (
		refund      domain.Refund
		amount      pgtype.Numeric
		status      string
		gatewayID   pgtype.Text
		completedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&refund.ID, &refund.ExternalID, &refund.TransactionID, &amount, &refund.Currency, &refund.ReasonCode,
		&status, &gatewayID, &refund.CreatedAt, &refund.UpdatedAt, &completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRefundNotFound
	}
	if err != nil {
		return nil, err
	}
	if refund.Amount, err = pgNumericToDecimal(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	refund.Status = domain.RefundStatus(status)
	refund.GatewayRefundID = textPtr(gatewayID)
	refund.CompletedAt = timePtr(completedAt)
	return &refund, nil
}
