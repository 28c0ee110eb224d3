package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
)

const (
	payoutColumns = `id, external_id, scope_type, scope_id, period_start, period_end,
	total_amount, paid_amount, remaining_amount, currency, status, bank_account_id,
	external_reference, failure_reason, failure_category, retryable, attempts,
	unrecognized_status, version, created_at, updated_at, dispatched_at, completed_at`

	payoutItemColumns = `id, payout_id, source_transaction_id, revenue_record_id,
	amount, gross_amount, refunded_amount, currency, created_at`

	livePayoutIndex = "idx_payouts_scope_period_live"

	// Advisory lock namespaces (first key of pg_advisory_xact_lock(int, int))
	scopeLockNamespace  = 7301
	periodLockNamespace = 7302

	defaultListLimit = 50
)

// PayoutRepository implements ports.PayoutRepository with pgx
type PayoutRepository struct {
	pool *pgxpool.Pool
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db ports.DBPort) *PayoutRepository {
	return &PayoutRepository{pool: db.GetDB()}
}

// CreateWithItems inserts the payout and its items. Callers pass the dispatch transaction.
func (r *PayoutRepository) CreateWithItems(ctx context.Context, tx ports.DBTX, p *domain.Payout, items []*domain.PayoutItem) error {
	q := executor(r.pool, tx)

	total, err := decimalToPgNumeric(p.TotalAmount)
	if err != nil {
		return err
	}
	paid, err := decimalToPgNumeric(p.PaidAmount)
	if err != nil {
		return err
	}
	remaining, err := decimalToPgNumeric(p.RemainingAmount)
	if err != nil {
		return err
	}
	if p.Version == 0 {
		p.Version = 1
	}

	_, err = q.Exec(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23)`,
		p.ID, p.ExternalID, string(p.Scope.Type), p.Scope.ID, p.PeriodStart, p.PeriodEnd,
		total, paid, remaining, p.Currency, string(p.Status), p.BankAccountID,
		nullTextPtr(p.ExternalReference), nullTextPtr(p.FailureReason), string(p.FailureCategory),
		p.Retryable, p.Attempts, nullTextPtr(p.UnrecognizedStatus), p.Version,
		p.CreatedAt, p.UpdatedAt, nullTime(p.DispatchedAt), nullTime(p.CompletedAt),
	)
	if isUniqueViolation(err, livePayoutIndex) {
		return domain.ErrPayoutAlreadyExists.
			WithDetail("scope", p.Scope.String()).
			WithDetail("currency", p.Currency)
	}
	if err != nil {
		return fmt.Errorf("create payout: %w", err)
	}

	for _, item := range items {
		if err := r.insertItem(ctx, q, item); err != nil {
			return err
		}
	}
	return nil
}

func (r *PayoutRepository) insertItem(ctx context.Context, q ports.DBTX, item *domain.PayoutItem) error {
	amount, err := decimalToPgNumeric(item.Amount)
	if err != nil {
		return err
	}
	gross, err := decimalToPgNumeric(item.GrossAmount)
	if err != nil {
		return err
	}
	refunded, err := decimalToPgNumeric(item.RefundedAmount)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO payout_items (`+payoutItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.PayoutID, item.SourceTransactionID, item.RevenueRecordID,
		amount, gross, refunded, item.Currency, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create payout item: %w", err)
	}
	return nil
}

// GetByID retrieves a payout by its internal ID
func (r *PayoutRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Payout, error) {
	return r.getOne(ctx, db, "id = $1", id)
}

// GetByExternalID retrieves a payout by its external ID
func (r *PayoutRepository) GetByExternalID(ctx context.Context, db ports.DBTX, externalID uuid.UUID) (*domain.Payout, error) {
	return r.getOne(ctx, db, "external_id = $1", externalID)
}

// GetByExternalReference retrieves a payout by the payout API's reference
func (r *PayoutRepository) GetByExternalReference(ctx context.Context, db ports.DBTX, ref string) (*domain.Payout, error) {
	return r.getOne(ctx, db, "external_reference = $1", ref)
}

func (r *PayoutRepository) getOne(ctx context.Context, db ports.DBTX, where string, arg interface{}) (*domain.Payout, error) {
	row := executor(r.pool, db).QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE `+where, arg)
	p, err := scanPayout(row)
	if err != nil {
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return p, nil
}

// ListItems returns the items of a payout
func (r *PayoutRepository) ListItems(ctx context.Context, db ports.DBTX, payoutID uuid.UUID) ([]*domain.PayoutItem, error) {
	rows, err := executor(r.pool, db).Query(ctx,
		`SELECT `+payoutItemColumns+` FROM payout_items WHERE payout_id = $1 ORDER BY created_at, id`, payoutID)
	if err != nil {
		return nil, fmt.Errorf("list payout items: %w", err)
	}
	defer rows.Close()

	var items []*domain.PayoutItem
	for rows.Next() {
		var (
			item                    domain.PayoutItem
			amount, gross, refunded pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.PayoutID, &item.SourceTransactionID, &item.RevenueRecordID,
			&amount, &gross, &refunded, &item.Currency, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payout item: %w", err)
		}
		if item.Amount, err = pgNumericToDecimal(amount); err != nil {
			return nil, err
		}
		if item.GrossAmount, err = pgNumericToDecimal(gross); err != nil {
			return nil, err
		}
		if item.RefundedAmount, err = pgNumericToDecimal(refunded); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// List returns payouts matching filter, newest first
func (r *PayoutRepository) List(ctx context.Context, db ports.DBTX, filter ports.PayoutFilter) ([]*domain.Payout, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Scope != nil {
		args = append(args, string(filter.Scope.Type), filter.Scope.ID)
		conds = append(conds, fmt.Sprintf("scope_type = $%d AND scope_id = $%d", len(args)-1, len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, filter.Offset)

	query := `SELECT ` + payoutColumns + ` FROM payouts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := executor(r.pool, db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// Update writes the mutable payout columns guarded by version
func (r *PayoutRepository) Update(ctx context.Context, tx ports.DBTX, p *domain.Payout) error {
	paid, err := decimalToPgNumeric(p.PaidAmount)
	if err != nil {
		return err
	}
	remaining, err := decimalToPgNumeric(p.RemainingAmount)
	if err != nil {
		return err
	}

	tag, err := executor(r.pool, tx).Exec(ctx, `
		UPDATE payouts
		SET status = $3,
		    paid_amount = $4,
		    remaining_amount = $5,
		    external_reference = $6,
		    failure_reason = $7,
		    failure_category = $8,
		    retryable = $9,
		    attempts = $10,
		    unrecognized_status = $11,
		    updated_at = $12,
		    dispatched_at = $13,
		    completed_at = $14,
		    bank_account_id = $15,
		    version = version + 1
		WHERE id = $1 AND version = $2`,
		p.ID, p.Version, string(p.Status), paid, remaining,
		nullTextPtr(p.ExternalReference), nullTextPtr(p.FailureReason), string(p.FailureCategory),
		p.Retryable, p.Attempts, nullTextPtr(p.UnrecognizedStatus), p.UpdatedAt,
		nullTime(p.DispatchedAt), nullTime(p.CompletedAt), p.BankAccountID,
	)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification.
			WithDetail("payout_id", p.ID.String()).
			WithDetail("version", p.Version)
	}
	p.Version++
	return nil
}

// CountAttachedTransactions counts source transactions already in a live payout
func (r *PayoutRepository) CountAttachedTransactions(ctx context.Context, tx ports.DBTX, transactionIDs []uuid.UUID) (int, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}
	var count int
	err := executor(r.pool, tx).QueryRow(ctx, `
		SELECT count(DISTINCT pi.source_transaction_id)
		FROM payout_items pi
		JOIN payouts p ON p.id = pi.payout_id
		WHERE pi.source_transaction_id = ANY($1) AND p.status <> 'CANCELLED'`,
		transactionIDs,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attached transactions: %w", err)
	}
	return count, nil
}

// LockScope takes a transaction-scoped advisory lock for the scope
func (r *PayoutRepository) LockScope(ctx context.Context, tx ports.DBTX, scope domain.PayoutScope) error {
	_, err := executor(r.pool, tx).Exec(ctx,
		`SELECT pg_advisory_xact_lock($1, hashtext($2))`, scopeLockNamespace, scope.String())
	if err != nil {
		return fmt.Errorf("lock scope: %w", err)
	}
	return nil
}

// TryLockPeriod tries a transaction-scoped advisory lock for a period run
func (r *PayoutRepository) TryLockPeriod(ctx context.Context, tx ports.DBTX, start, end time.Time) (bool, error) {
	var locked bool
	key := start.UTC().Format(time.RFC3339) + "/" + end.UTC().Format(time.RFC3339)
	err := executor(r.pool, tx).QueryRow(ctx,
		`SELECT pg_try_advisory_xact_lock($1, hashtext($2))`, periodLockNamespace, key).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("lock period: %w", err)
	}
	return locked, nil
}

func scanPayout(row pgx.Row) (*domain.Payout, error) {
	var (
		p                         domain.Payout
		scopeType, status         string
		failureCategory           string
		total, paid, remaining    pgtype.Numeric
		extRef, reason, unrecog   pgtype.Text
		dispatchedAt, completedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&p.ID, &p.ExternalID, &scopeType, &p.Scope.ID, &p.PeriodStart, &p.PeriodEnd,
		&total, &paid, &remaining, &p.Currency, &status, &p.BankAccountID,
		&extRef, &reason, &failureCategory, &p.Retryable, &p.Attempts,
		&unrecog, &p.Version, &p.CreatedAt, &p.UpdatedAt, &dispatchedAt, &completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.TotalAmount, err = pgNumericToDecimal(total); err != nil {
		return nil, err
	}
	if p.PaidAmount, err = pgNumericToDecimal(paid); err != nil {
		return nil, err
	}
	if p.RemainingAmount, err = pgNumericToDecimal(remaining); err != nil {
		return nil, err
	}
	if p.Status, err = domain.ParsePayoutStatus(status); err != nil {
		return nil, err
	}
	p.Scope.Type = domain.ScopeType(scopeType)
	p.FailureCategory = domain.FailureCategory(failureCategory)
	p.ExternalReference = textPtr(extRef)
	p.FailureReason = textPtr(reason)
	p.UnrecognizedStatus = textPtr(unrecog)
	p.DispatchedAt = timePtr(dispatchedAt)
	p.CompletedAt = timePtr(completedAt)
	return &p, nil
}
