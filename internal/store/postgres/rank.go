package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

func (s *Store) HasRankHistory(ctx context.Context, userID string, packageCode plan.PackageCode, rankIndex int) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM rank_history WHERE user_id = $1 AND package_code = $2 AND rank_index = $3
		)
	`, userID, string(packageCode), rankIndex)
	return exists, err
}

// InsertRankHistory relies on the (user_id, package_code, rank_index)
// primary key to enforce the one-shot rank-income invariant (spec.md
// §3, §8.4) even under concurrent rank-engine invocations.
func (s *Store) InsertRankHistory(ctx context.Context, e *domain.RankHistoryEntry) error {
	if e.CreditedAt.IsZero() {
		e.CreditedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rank_history (user_id, package_code, rank_index, amount, credited_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.UserID, e.PackageCode, e.RankIndex, e.Amount, e.CreditedAt)
	if err != nil && isUniqueViolation(err) {
		return errors.Join(domain.ErrAlreadyProcessed, err)
	}
	return err
}
