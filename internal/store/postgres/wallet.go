package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
)

type walletRow struct {
	UserID        string    `db:"user_id"`
	Balance       int64     `db:"balance"`
	Pending       int64     `db:"pending"`
	TotalCredited int64     `db:"total_credited"`
	TotalDebited  int64     `db:"total_debited"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r *walletRow) toDomain() *domain.Wallet {
	return &domain.Wallet{
		UserID:        r.UserID,
		Balance:       r.Balance,
		Pending:       r.Pending,
		TotalCredited: r.TotalCredited,
		TotalDebited:  r.TotalDebited,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (s *Store) GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	var row walletRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO wallets (user_id, updated_at) VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, now)
		if err != nil {
			return nil, err
		}
		return &domain.Wallet{UserID: userID, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// CompareAndSwapWallet is the postgres optimistic-concurrency primitive
// spec.md §4.A requires when multi-statement transactions aren't used
// by the caller; internal/ledger's retry loop uses it for every wallet
// write.
func (s *Store) CompareAndSwapWallet(ctx context.Context, newWallet *domain.Wallet, expectedUpdatedAt time.Time) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE wallets SET
			balance = $1, pending = $2, total_credited = $3, total_debited = $4, updated_at = $5
		WHERE user_id = $6 AND updated_at = $7
	`, newWallet.Balance, newWallet.Pending, newWallet.TotalCredited, newWallet.TotalDebited, now,
		newWallet.UserID, expectedUpdatedAt)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: wallet %s changed since read", domain.ErrConflict, newWallet.UserID)
	}
	return nil
}

func (s *Store) AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	if e.TxID == "" {
		e.TxID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	refs, err := json.Marshal(e.RelatedEntryIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(tx_id, user_id, direction, amount, category, balance_after, related_entry_ids, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.TxID, e.UserID, string(e.Direction), e.Amount, string(e.Category), e.BalanceAfter, refs, e.Note, e.CreatedAt)
	return err
}

func (s *Store) LedgerEntriesForUser(ctx context.Context, userID string) ([]*domain.LedgerEntry, error) {
	type row struct {
		TxID            string    `db:"tx_id"`
		UserID          string    `db:"user_id"`
		Direction       string    `db:"direction"`
		Amount          int64     `db:"amount"`
		Category        string    `db:"category"`
		BalanceAfter    int64     `db:"balance_after"`
		RelatedEntryIDs []byte    `db:"related_entry_ids"`
		Note            string    `db:"note"`
		CreatedAt       time.Time `db:"created_at"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM ledger_entries WHERE user_id = $1 ORDER BY created_at ASC, tx_id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		var refs []string
		if len(r.RelatedEntryIDs) > 0 {
			if err := json.Unmarshal(r.RelatedEntryIDs, &refs); err != nil {
				return nil, err
			}
		}
		out = append(out, &domain.LedgerEntry{
			TxID:            r.TxID,
			UserID:          r.UserID,
			Direction:       domain.LedgerDirection(r.Direction),
			Amount:          r.Amount,
			Category:        domain.LedgerCategory(r.Category),
			BalanceAfter:    r.BalanceAfter,
			RelatedEntryIDs: refs,
			Note:            r.Note,
			CreatedAt:       r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) AppendBVLedgerEntry(ctx context.Context, e *domain.BVLedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bv_ledger_entries (id, user_id, signed_amount, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.UserID, e.SignedAmount, e.Source, e.CreatedAt)
	return err
}

type fundPoolRow struct {
	TotalCTOBV         int64  `db:"total_cto_bv"`
	CarPoolMonthly     int64  `db:"car_pool_monthly"`
	HousePoolMonthly   int64  `db:"house_pool_monthly"`
	TravelFund         int64  `db:"travel_fund"`
	CarPoolPercent     float64 `db:"car_pool_percent"`
	HousePoolPercent   float64 `db:"house_pool_percent"`
	RoyaltyPoolPercent float64 `db:"royalty_pool_percent"`
	History            []byte `db:"history"`
	TravelAllocations  []byte `db:"travel_allocations"`
	Version            int64  `db:"version"`
}

func (s *Store) GetFundPool(ctx context.Context) (*domain.FundPool, error) {
	var row fundPoolRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM fund_pool WHERE id = 1`); err != nil {
		return nil, err
	}
	pool := &domain.FundPool{
		TotalCTOBV:         row.TotalCTOBV,
		CarPoolMonthly:     row.CarPoolMonthly,
		HousePoolMonthly:   row.HousePoolMonthly,
		TravelFund:         row.TravelFund,
		CarPoolPercent:     row.CarPoolPercent,
		HousePoolPercent:   row.HousePoolPercent,
		RoyaltyPoolPercent: row.RoyaltyPoolPercent,
	}
	if len(row.History) > 0 {
		if err := json.Unmarshal(row.History, &pool.History); err != nil {
			return nil, err
		}
	}
	if len(row.TravelAllocations) > 0 {
		if err := json.Unmarshal(row.TravelAllocations, &pool.TravelAllocations); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

func (s *Store) FundPoolVersion(ctx context.Context) (int64, error) {
	var version int64
	err := s.db.GetContext(ctx, &version, `SELECT version FROM fund_pool WHERE id = 1`)
	return version, err
}

// CompareAndSwapFundPool is the hot-row optimistic-concurrency write
// spec.md §5 mandates ("document-level atomic $inc is mandatory") for
// the FundPool singleton.
func (s *Store) CompareAndSwapFundPool(ctx context.Context, newPool *domain.FundPool, expectedVersion int64) error {
	history, err := json.Marshal(newPool.History)
	if err != nil {
		return err
	}
	travel, err := json.Marshal(newPool.TravelAllocations)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE fund_pool SET
			total_cto_bv = $1, car_pool_monthly = $2, house_pool_monthly = $3,
			travel_fund = $4, car_pool_percent = $5, house_pool_percent = $6,
			royalty_pool_percent = $7, history = $8, travel_allocations = $9,
			version = version + 1
		WHERE id = 1 AND version = $10
	`, newPool.TotalCTOBV, newPool.CarPoolMonthly, newPool.HousePoolMonthly,
		newPool.TravelFund, newPool.CarPoolPercent, newPool.HousePoolPercent,
		newPool.RoyaltyPoolPercent, history, travel, expectedVersion)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: fund pool changed since read", domain.ErrConflict)
	}
	return nil
}

func (s *Store) AppendRoyaltyLog(ctx context.Context, e *domain.RoyaltyLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO royalty_log (id, user_id, cto_bv_amount, rate, desired, paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.UserID, e.CTOBVAmount, e.Rate, e.Desired, e.Paid, e.CreatedAt)
	return err
}
