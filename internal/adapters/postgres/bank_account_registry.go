package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
)

// BankAccountRegistry reads payout destinations
type BankAccountRegistry struct {
	pool *pgxpool.Pool
}

// NewBankAccountRegistry creates a new bank account registry
func NewBankAccountRegistry(db ports.DBPort) *BankAccountRegistry {
	return &BankAccountRegistry{pool: db.GetDB()}
}

// GetPayoutAccount returns the newest verified, active account of the scope
func (r *BankAccountRegistry) GetPayoutAccount(ctx context.Context, db ports.DBTX, scope domain.PayoutScope) (*domain.BankAccount, error) {
	var acct domain.BankAccount
	var scopeType string
	err := executor(r.pool, db).QueryRow(ctx, `
		SELECT id, scope_type, scope_id, iban, holder_name, verified, active
		FROM bank_accounts
		WHERE scope_type = $1 AND scope_id = $2 AND verified AND active
		ORDER BY created_at DESC
		LIMIT 1`, string(scope.Type), scope.ID,
	).Scan(&acct.ID, &scopeType, &acct.Scope.ID, &acct.IBAN, &acct.HolderName, &acct.Verified, &acct.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBankAccountUnverified.WithDetail("scope", scope.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get payout account: %w", err)
	}
	acct.Scope.Type = domain.ScopeType(scopeType)
	return &acct, nil
}
