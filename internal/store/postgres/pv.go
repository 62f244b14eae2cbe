package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

type pvRow struct {
	ID                  string       `db:"id"`
	OwnerUserID         string       `db:"owner_user_id"`
	PackageCode         string       `db:"package_code"`
	Side                string       `db:"side"`
	PV                  int64        `db:"pv"`
	State               string       `db:"state"`
	MatchedWithEntryID  string       `db:"matched_with_entry_id"`
	SessionMatchedIndex int          `db:"session_matched_index"`
	MatchedAt           sql.NullTime `db:"matched_at"`
	ReservedBy          string       `db:"reserved_by"`
	CreatedAt           time.Time    `db:"created_at"`
}

func (r *pvRow) toDomain() *domain.PVEntry {
	e := &domain.PVEntry{
		ID:                  r.ID,
		OwnerUserID:         r.OwnerUserID,
		PackageCode:         plan.PackageCode(r.PackageCode),
		Side:                domain.Side(r.Side),
		PV:                  r.PV,
		State:               domain.PVState(r.State),
		MatchedWithEntryID:  r.MatchedWithEntryID,
		SessionMatchedIndex: r.SessionMatchedIndex,
		ReservedBy:          r.ReservedBy,
		CreatedAt:           r.CreatedAt,
	}
	if r.MatchedAt.Valid {
		e.MatchedAt = r.MatchedAt.Time
	}
	return e
}

func (s *Store) CreatePVEntry(ctx context.Context, e *domain.PVEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.State == "" {
		e.State = domain.PVRed
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pv_entries (id, owner_user_id, package_code, side, pv, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.OwnerUserID, string(e.PackageCode), string(e.Side), e.PV, string(e.State), e.CreatedAt)
	return err
}

// CandidateUsers finds users with >=1 red entry on each side for
// packageCode, ordered by earliest red entry overall (spec.md §4.E.1
// FIFO candidate discovery).
func (s *Store) CandidateUsers(ctx context.Context, packageCode plan.PackageCode) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT owner_user_id
		FROM pv_entries
		WHERE package_code = $1 AND state = 'red'
		GROUP BY owner_user_id
		HAVING count(*) FILTER (WHERE side = 'L') > 0
		   AND count(*) FILTER (WHERE side = 'R') > 0
		ORDER BY min(created_at) ASC
	`, string(packageCode))
	return ids, err
}

func (s *Store) EarliestRed(ctx context.Context, userID string, packageCode plan.PackageCode, side domain.Side) (*domain.PVEntry, error) {
	var row pvRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM pv_entries
		WHERE owner_user_id = $1 AND package_code = $2 AND side = $3 AND state = 'red' AND reserved_by = ''
		ORDER BY created_at ASC
		LIMIT 1
	`, userID, string(packageCode), string(side))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("pv_entry", userID)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (s *Store) ReserveForMatch(ctx context.Context, entryID, reservationToken string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pv_entries SET reserved_by = $1
		WHERE id = $2 AND state = 'red' AND reserved_by = ''
	`, reservationToken, entryID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: pv entry %s already reserved or matched", domain.ErrConflict, entryID)
	}
	return nil
}

func (s *Store) ReleaseReservation(ctx context.Context, entryID, reservationToken string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pv_entries SET reserved_by = ''
		WHERE id = $1 AND reserved_by = $2 AND state = 'red'
	`, entryID, reservationToken)
	return err
}

// FlipToGreen flips both entries, one statement each, inside a
// transaction of its own; if either entry is no longer red the
// transaction is rolled back, so either both flips apply or neither
// does (spec.md §4.E: "matched=true simultaneously or not at all").
func (s *Store) FlipToGreen(ctx context.Context, leftEntryID, rightEntryID string, sessionIndex int, matchedAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, pair := range []struct{ self, other string }{
		{leftEntryID, rightEntryID},
		{rightEntryID, leftEntryID},
	} {
		result, err := tx.ExecContext(ctx, `
			UPDATE pv_entries SET
				state = 'green',
				matched_with_entry_id = $1,
				session_matched_index = $2,
				matched_at = $3,
				reserved_by = ''
			WHERE id = $4 AND state = 'red'
		`, pair.other, sessionIndex, matchedAt, pair.self)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: entry %s no longer red", domain.ErrConflict, pair.self)
		}
	}
	return tx.Commit()
}

func (s *Store) CreatePendingIncome(ctx context.Context, p *domain.PendingIncome) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_incomes (id, user_id, package_code, amount, materialized, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.UserID, string(p.PackageCode), p.Amount, p.Materialized, p.CreatedAt)
	return err
}

func (s *Store) UnmaterializedPendingIncome(ctx context.Context, userID string, packageCode plan.PackageCode) ([]*domain.PendingIncome, error) {
	type row struct {
		ID          string    `db:"id"`
		UserID      string    `db:"user_id"`
		PackageCode string    `db:"package_code"`
		Amount      int64     `db:"amount"`
		CreatedAt   time.Time `db:"created_at"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, package_code, amount, created_at FROM pending_incomes
		WHERE user_id = $1 AND package_code = $2 AND materialized = FALSE
		ORDER BY created_at ASC
	`, userID, string(packageCode))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.PendingIncome, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.PendingIncome{
			ID:          r.ID,
			UserID:      r.UserID,
			PackageCode: plan.PackageCode(r.PackageCode),
			Amount:      r.Amount,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) MarkPendingIncomeMaterialized(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pending_incomes SET materialized = TRUE WHERE id = $1`, id)
	return err
}
