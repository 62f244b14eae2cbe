package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

// InsertSessionRun is the idempotency gate spec.md §4.E requires: the
// (date_key, session_index) primary key rejects a duplicate insert,
// which the caller treats as ErrAlreadyProcessed (spec.md §7).
func (s *Store) InsertSessionRun(ctx context.Context, run *domain.SessionRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_runs (date_key, session_index, started_at, finalized, processed_pairs)
		VALUES ($1, $2, $3, FALSE, '[]')
	`, run.DateKey, run.SessionIndex, run.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session run %s/%d already exists", domain.ErrAlreadyProcessed, run.DateKey, run.SessionIndex)
		}
		return err
	}
	return nil
}

type sessionRunRow struct {
	DateKey        string       `db:"date_key"`
	SessionIndex   int          `db:"session_index"`
	StartedAt      time.Time    `db:"started_at"`
	FinishedAt     sql.NullTime `db:"finished_at"`
	Finalized      bool         `db:"finalized"`
	ProcessedPairs []byte       `db:"processed_pairs"`
}

func (s *Store) GetSessionRun(ctx context.Context, dateKey string, sessionIndex int) (*domain.SessionRun, error) {
	var row sessionRunRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM session_runs WHERE date_key = $1 AND session_index = $2
	`, dateKey, sessionIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("session_run", fmt.Sprintf("%s/%d", dateKey, sessionIndex))
	}
	if err != nil {
		return nil, err
	}
	run := &domain.SessionRun{
		DateKey:      row.DateKey,
		SessionIndex: row.SessionIndex,
		StartedAt:    row.StartedAt,
		Finalized:    row.Finalized,
	}
	if row.FinishedAt.Valid {
		run.FinishedAt = row.FinishedAt.Time
	}
	if len(row.ProcessedPairs) > 0 {
		if err := json.Unmarshal(row.ProcessedPairs, &run.ProcessedPairs); err != nil {
			return nil, err
		}
	}
	run.ProcessedPairCount = len(run.ProcessedPairs)
	return run, nil
}

// AppendProcessedPair appends to the JSONB processed_pairs array in a
// single round trip using jsonb concatenation, avoiding a read-modify-
// write race on the SessionRun row (spec.md §5: "processed-pair
// records appear in the order they were committed").
func (s *Store) AppendProcessedPair(ctx context.Context, dateKey string, sessionIndex int, pair domain.ProcessedPair) error {
	encoded, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE session_runs
		SET processed_pairs = processed_pairs || $1::jsonb
		WHERE date_key = $2 AND session_index = $3
	`, encoded, dateKey, sessionIndex)
	return err
}

func (s *Store) FinalizeSessionRun(ctx context.Context, dateKey string, sessionIndex int, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_runs SET finished_at = $1, finalized = TRUE
		WHERE date_key = $2 AND session_index = $3
	`, finishedAt, dateKey, sessionIndex)
	return err
}

// CountProcessedPairs enforces the per-session cap (spec.md §4.E,
// §8.5) by counting matching JSONB array elements for userID/
// packageCode within the run.
func (s *Store) CountProcessedPairs(ctx context.Context, dateKey string, sessionIndex int, userID string, packageCode plan.PackageCode) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT count(*)
		FROM session_runs, jsonb_array_elements(processed_pairs) AS pair
		WHERE date_key = $1 AND session_index = $2
		  AND pair->>'UserID' = $3 AND pair->>'PackageCode' = $4
	`, dateKey, sessionIndex, userID, string(packageCode))
	return count, err
}

func isUniqueViolation(err error) bool {
	return err != nil && pqErrCode(err) == "23505"
}
