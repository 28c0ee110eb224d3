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

const transactionColumns = `id, external_id, payer_ref, scope_type, scope_id, amount, currency,
	gateway, gateway_reference, status, unrecognized_status, version,
	created_at, last_transitioned_at, deleted_at`

// TransactionRepository implements ports.TransactionRepository with pgx
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db ports.DBPort) *TransactionRepository {
	return &TransactionRepository{pool: db.GetDB()}
}

// Create creates a new transaction
func (r *TransactionRepository) Create(ctx context.Context, tx ports.DBTX, txn *domain.FinancialTransaction) error {
	amount, err := decimalToPgNumeric(txn.Amount)
	if err != nil {
		return err
	}
	if txn.Version == 0 {
		txn.Version = 1
	}

	_, err = executor(r.pool, tx).Exec(ctx, `
		INSERT INTO financial_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		txn.ID, txn.ExternalID, txn.PayerRef, string(txn.Scope.Type), txn.Scope.ID, amount, txn.Currency,
		string(txn.Gateway), nullTextPtr(txn.GatewayReference), string(txn.Status),
		nullTextPtr(txn.UnrecognizedStatus), txn.Version,
		txn.CreatedAt, txn.LastTransitionedAt, nullTime(txn.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.FinancialTransaction, error) {
	row := executor(r.pool, db).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM financial_transactions WHERE id = $1 AND deleted_at IS NULL`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return txn, nil
}

// GetByExternalID retrieves a transaction by its customer-facing ID
func (r *TransactionRepository) GetByExternalID(ctx context.Context, db ports.DBTX, externalID uuid.UUID) (*domain.FinancialTransaction, error) {
	row := executor(r.pool, db).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM financial_transactions WHERE external_id = $1 AND deleted_at IS NULL`, externalID)
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("get transaction by external id: %w", err)
	}
	return txn, nil
}

// GetByGatewayReference retrieves a transaction by gateway reference
func (r *TransactionRepository) GetByGatewayReference(ctx context.Context, db ports.DBTX, gateway domain.GatewayKind, ref string) (*domain.FinancialTransaction, error) {
	row := executor(r.pool, db).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM financial_transactions
		 WHERE gateway = $1 AND gateway_reference = $2 AND deleted_at IS NULL`, string(gateway), ref)
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("get transaction by gateway reference: %w", err)
	}
	return txn, nil
}

// Update writes the mutable columns if nobody changed the row since it was read
func (r *TransactionRepository) Update(ctx context.Context, tx ports.DBTX, txn *domain.FinancialTransaction) error {
	tag, err := executor(r.pool, tx).Exec(ctx, `
		UPDATE financial_transactions
		SET status = $3,
		    gateway_reference = $4,
		    unrecognized_status = $5,
		    last_transitioned_at = $6,
		    version = version + 1
		WHERE id = $1 AND version = $2`,
		txn.ID, txn.Version, string(txn.Status), nullTextPtr(txn.GatewayReference),
		nullTextPtr(txn.UnrecognizedStatus), txn.LastTransitionedAt,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification.
			WithDetail("transaction_id", txn.ID.String()).
			WithDetail("version", txn.Version)
	}
	txn.Version++
	return nil
}

func scanTransaction(row pgx.Row) (*domain.FinancialTransaction, error) {
	var (
		txn          domain.FinancialTransaction
		scopeType    string
		gateway      string
		status       string
		amount       pgtype.Numeric
		gatewayRef   pgtype.Text
		unrecognized pgtype.Text
		deletedAt    pgtype.Timestamptz
	)
	err := row.Scan(
		&txn.ID, &txn.ExternalID, &txn.PayerRef, &scopeType, &txn.Scope.ID, &amount, &txn.Currency,
		&gateway, &gatewayRef, &status, &unrecognized, &txn.Version,
		&txn.CreatedAt, &txn.LastTransitionedAt, &deletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTxnNotFound
	}
	if err != nil {
		return nil, err
	}

	if txn.Amount, err = pgNumericToDecimal(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if txn.Status, err = domain.ParsePaymentStatus(status); err != nil {
		return nil, err
	}
	txn.Scope.Type = domain.ScopeType(scopeType)
	txn.Gateway = domain.GatewayKind(gateway)
	txn.GatewayReference = textPtr(gatewayRef)
	txn.UnrecognizedStatus = textPtr(unrecognized)
	txn.DeletedAt = timePtr(deletedAt)
	return &txn, nil
}
