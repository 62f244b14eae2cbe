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

type userRow struct {
	ID                   string         `db:"id"`
	ExternalCode         string         `db:"external_code"`
	SponsorID            string         `db:"sponsor_id"`
	PlacementParentID    string         `db:"placement_parent_id"`
	PlacementSide        string         `db:"placement_side"`
	ActivePackage        string         `db:"active_package"`
	PackageActivatedAt   sql.NullTime   `db:"package_activated_at"`
	RankIndex            []byte         `db:"rank_index"`
	IncomePairs          []byte         `db:"income_pairs"`
	CutoffPairs          []byte         `db:"cutoff_pairs"`
	LeftChildID          string         `db:"left_child_id"`
	RightChildID         string         `db:"right_child_id"`
	TotalRoyaltyReceived float64        `db:"total_royalty_received"`
	Quarantined          bool           `db:"quarantined"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (r *userRow) toDomain() (*domain.User, error) {
	u := &domain.User{
		ID:                   r.ID,
		ExternalCode:         r.ExternalCode,
		SponsorID:            r.SponsorID,
		PlacementParentID:    r.PlacementParentID,
		PlacementSide:        domain.Side(r.PlacementSide),
		ActivePackage:        plan.PackageCode(r.ActivePackage),
		LeftChildID:          r.LeftChildID,
		RightChildID:         r.RightChildID,
		TotalRoyaltyReceived: r.TotalRoyaltyReceived,
		Quarantined:          r.Quarantined,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		RankIndex:            map[plan.PackageCode]int{},
		IncomePairs:          map[plan.PackageCode]int{},
		CutoffPairs:          map[plan.PackageCode]int{},
	}
	if r.PackageActivatedAt.Valid {
		u.PackageActivatedAt = r.PackageActivatedAt.Time
	}
	for _, pair := range []struct {
		raw []byte
		dst map[plan.PackageCode]int
	}{
		{r.RankIndex, u.RankIndex},
		{r.IncomePairs, u.IncomePairs},
		{r.CutoffPairs, u.CutoffPairs},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		var m map[string]int
		if err := json.Unmarshal(pair.raw, &m); err != nil {
			return nil, fmt.Errorf("decode user counters: %w", err)
		}
		for k, v := range m {
			pair.dst[plan.PackageCode(k)] = v
		}
	}
	return u, nil
}

func userRowFrom(u *domain.User) (*userRow, error) {
	rankIndex, err := marshalCounters(u.RankIndex)
	if err != nil {
		return nil, err
	}
	incomePairs, err := marshalCounters(u.IncomePairs)
	if err != nil {
		return nil, err
	}
	cutoffPairs, err := marshalCounters(u.CutoffPairs)
	if err != nil {
		return nil, err
	}
	row := &userRow{
		ID:                   u.ID,
		ExternalCode:         u.ExternalCode,
		SponsorID:            u.SponsorID,
		PlacementParentID:    u.PlacementParentID,
		PlacementSide:        string(u.PlacementSide),
		ActivePackage:        string(u.ActivePackage),
		RankIndex:            rankIndex,
		IncomePairs:          incomePairs,
		CutoffPairs:          cutoffPairs,
		LeftChildID:          u.LeftChildID,
		RightChildID:         u.RightChildID,
		TotalRoyaltyReceived: u.TotalRoyaltyReceived,
		Quarantined:          u.Quarantined,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
	if !u.PackageActivatedAt.IsZero() {
		row.PackageActivatedAt = sql.NullTime{Time: u.PackageActivatedAt, Valid: true}
	}
	return row, nil
}

func marshalCounters(m map[plan.PackageCode]int) ([]byte, error) {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return json.Marshal(out)
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("user", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	row, err := userRowFrom(u)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO users
			(id, external_code, sponsor_id, placement_parent_id, placement_side,
			 active_package, package_activated_at, rank_index, income_pairs,
			 cutoff_pairs, left_child_id, right_child_id, total_royalty_received,
			 quarantined, created_at, updated_at)
		VALUES
			(:id, :external_code, :sponsor_id, :placement_parent_id, :placement_side,
			 :active_package, :package_activated_at, :rank_index, :income_pairs,
			 :cutoff_pairs, :left_child_id, :right_child_id, :total_royalty_received,
			 :quarantined, :created_at, :updated_at)
	`, row)
	return err
}

func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now()
	row, err := userRowFrom(u)
	if err != nil {
		return err
	}
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE users SET
			external_code = :external_code,
			active_package = :active_package,
			package_activated_at = :package_activated_at,
			rank_index = :rank_index,
			income_pairs = :income_pairs,
			cutoff_pairs = :cutoff_pairs,
			left_child_id = :left_child_id,
			right_child_id = :right_child_id,
			total_royalty_received = :total_royalty_received,
			quarantined = :quarantined,
			updated_at = :updated_at
		WHERE id = :id
	`, row)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewNotFoundError("user", u.ID)
	}
	return nil
}

// ReserveChildSlot is the postgres CAS primitive for the placement
// allocator (spec.md §4.C): it flips left_child_id/right_child_id from
// empty to childID in a single statement, so a concurrent winner is
// detected by RowsAffected == 0 rather than a read-then-write race.
func (s *Store) ReserveChildSlot(ctx context.Context, parentID string, side domain.Side, childID string) error {
	column := "left_child_id"
	if side == domain.SideRight {
		column = "right_child_id"
	}
	query := fmt.Sprintf(`UPDATE users SET %s = $1, updated_at = now() WHERE id = $2 AND %s = ''`, column, column)
	result, err := s.db.ExecContext(ctx, query, childID, parentID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: slot %s on %s already occupied", domain.ErrConflict, side, parentID)
	}
	return nil
}

func (s *Store) SponsorChain(ctx context.Context, userID string, limit int) ([]string, error) {
	chain := make([]string, 0, limit)
	current := userID
	for i := 0; i < limit; i++ {
		var sponsorID string
		err := s.db.GetContext(ctx, &sponsorID, `SELECT sponsor_id FROM users WHERE id = $1`, current)
		if errors.Is(err, sql.ErrNoRows) || sponsorID == "" {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, sponsorID)
		current = sponsorID
	}
	return chain, nil
}

func (s *Store) DirectSponsoreeCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT count(*) FROM users WHERE sponsor_id = $1`, userID)
	return count, err
}

// DownlineCountAtDepth walks the sponsor tree depth levels down via a
// recursive CTE, matching the level-star bonus's level2/level3 counts
// (spec.md §4.G).
func (s *Store) DownlineCountAtDepth(ctx context.Context, userID string, depth int) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		WITH RECURSIVE downline AS (
			SELECT id, sponsor_id, 0 AS depth FROM users WHERE sponsor_id = $1
			UNION ALL
			SELECT u.id, u.sponsor_id, d.depth + 1
			FROM users u JOIN downline d ON u.sponsor_id = d.id
			WHERE d.depth + 1 < $2
		)
		SELECT count(*) FROM downline WHERE depth = $2 - 1
	`, userID, depth)
	return count, err
}

func (s *Store) ListActiveSilverHolders(ctx context.Context) ([]*domain.User, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM users WHERE active_package = 'silver' ORDER BY total_royalty_received ASC
	`)
	if err != nil {
		return nil, err
	}
	return toDomainUsers(rows)
}

func (s *Store) ListByMinRank(ctx context.Context, minRankIndex int) ([]*domain.User, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT u.* FROM users u
		WHERE EXISTS (
			SELECT 1 FROM jsonb_each_text(u.rank_index) AS r(pkg, idx)
			WHERE r.idx::int >= $1
		)
	`, minRankIndex)
	if err != nil {
		return nil, err
	}
	return toDomainUsers(rows)
}

func toDomainUsers(rows []userRow) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(rows))
	for i := range rows {
		u, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
