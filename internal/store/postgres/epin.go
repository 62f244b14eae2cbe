package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

type epinRow struct {
	Code          string       `db:"code"`
	PackageCode   string       `db:"package_code"`
	OwnerUserID   string       `db:"owner_user_id"`
	IsUsed        bool         `db:"is_used"`
	UsedByUserID  string       `db:"used_by_user_id"`
	UsedAt        sql.NullTime `db:"used_at"`
	TransferCount int          `db:"transfer_count"`
	CreatedBy     string       `db:"created_by"`
	CreatedAt     time.Time    `db:"created_at"`
}

func (r *epinRow) toDomain() *domain.EPIN {
	e := &domain.EPIN{
		Code:          r.Code,
		PackageCode:   plan.PackageCode(r.PackageCode),
		OwnerUserID:   r.OwnerUserID,
		IsUsed:        r.IsUsed,
		UsedByUserID:  r.UsedByUserID,
		TransferCount: r.TransferCount,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
	}
	if r.UsedAt.Valid {
		e.UsedAt = r.UsedAt.Time
	}
	return e
}

// CreateEPINs batch-inserts unique codes in one statement, matching
// spec.md §4.J's "atomic batch insert of unique codes."
func (s *Store) CreateEPINs(ctx context.Context, epins []*domain.EPIN) error {
	if len(epins) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range epins {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO epins (code, package_code, owner_user_id, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, e.Code, string(e.PackageCode), e.OwnerUserID, e.CreatedBy, e.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetEPIN(ctx context.Context, code string) (*domain.EPIN, error) {
	var row epinRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM epins WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("epin", code)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// TransferEPIN is unlimited and never expires (spec.md §4.J); it only
// fails once IsUsed is true, enforced by the WHERE clause rather than a
// separate read.
func (s *Store) TransferEPIN(ctx context.Context, code, toUserID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE epins SET owner_user_id = $1, transfer_count = transfer_count + 1
		WHERE code = $2 AND is_used = FALSE
	`, toUserID, code)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: epin %s is used or missing", domain.ErrAlreadyProcessed, code)
	}
	return nil
}

func (s *Store) ReserveEPIN(ctx context.Context, code, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE epins SET owner_user_id = $1 WHERE code = $2 AND is_used = FALSE
	`, userID, code)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: epin %s is used or missing", domain.ErrAlreadyProcessed, code)
	}
	return nil
}

// ConsumeEPIN is terminal: isUsed=true can never be undone (spec.md
// §3, §8.8), enforced by the `is_used = FALSE` guard.
func (s *Store) ConsumeEPIN(ctx context.Context, code, userID string, usedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE epins SET is_used = TRUE, used_by_user_id = $1, used_at = $2
		WHERE code = $3 AND is_used = FALSE
	`, userID, usedAt, code)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: epin %s already used", domain.ErrAlreadyProcessed, code)
	}
	return nil
}
