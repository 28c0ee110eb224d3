// Package mocks provides shared mock implementations for testing.
package mocks

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/mock"
)

// MockDBPort runs transaction callbacks inline with a nil pgx.Tx.
// Set TxErr to make WithTransaction fail before fn runs, and count calls with Commits.
type MockDBPort struct {
	mock.Mock
	TxErr   error
	Commits int
}

func (m *MockDBPort) GetDB() *pgxpool.Pool {
	return nil
}

func (m *MockDBPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if m.TxErr != nil {
		return m.TxErr
	}
	if err := fn(ctx, nil); err != nil {
		return err
	}
	m.Commits++
	return nil
}

func (m *MockDBPort) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}
