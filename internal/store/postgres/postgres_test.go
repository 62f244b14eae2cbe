package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestGetUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.GetUser(context.Background(), "u1")
	require.Error(t, err)
	require.True(t, domain.IsNotFound(err))
}

func TestReserveChildSlotConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE users SET left_child_id = \$1, updated_at = now\(\) WHERE id = \$2 AND left_child_id = ''`).
		WithArgs("child1", "parent1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.ReserveChildSlot(context.Background(), "parent1", domain.SideLeft, "child1")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestReserveChildSlotSucceeds(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE users SET right_child_id = \$1, updated_at = now\(\) WHERE id = \$2 AND right_child_id = ''`).
		WithArgs("child1", "parent1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.ReserveChildSlot(context.Background(), "parent1", domain.SideRight, "child1")
	require.NoError(t, err)
}

func TestInsertSessionRunDuplicateIsAlreadyProcessed(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO session_runs`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.InsertSessionRun(context.Background(), &domain.SessionRun{
		DateKey:      "2026-07-30",
		SessionIndex: 1,
		StartedAt:    time.Now(),
	})
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestConsumeEPINAlreadyUsed(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE epins SET is_used = TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.ConsumeEPIN(context.Background(), "CODE1", "user1", time.Now())
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestDecrementStockInsufficient(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE franchise_products SET stock = stock - \$1`).
		WithArgs(int64(5), "prod1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DecrementStock(context.Background(), "prod1", 5)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestCompareAndSwapFundPoolConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE fund_pool SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.CompareAndSwapFundPool(context.Background(), &domain.FundPool{}, 3)
	require.ErrorIs(t, err, domain.ErrConflict)
}
