// Package memory is an in-memory, mutex-guarded Store implementation.
// It is the default backend for development and the backend every
// unit test runs against, grounded in the teacher's
// infrastructure/database/mock_repository*.go in-memory map style.
//
// Every "atomic" operation on this store is implemented by holding a
// single coarse mutex for the duration of the operation. That is a
// deliberate simplification for an in-process backend: it gives every
// CAS-shaped method in internal/store real all-or-nothing semantics
// without needing per-row optimistic-concurrency bookkeeping, which
// the Postgres store (internal/store/postgres) provides instead via
// real SQL transactions and version columns.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

// Store is the in-memory Store implementation.
type Store struct {
	mu sync.Mutex

	users         map[string]*domain.User
	pvEntries     map[string]*domain.PVEntry
	pendingIncome map[string]*domain.PendingIncome
	wallets       map[string]*domain.Wallet
	ledger        []*domain.LedgerEntry
	bvLedger      []*domain.BVLedgerEntry
	fundPool      *domain.FundPool
	fundVersion   int64
	sessionRuns   map[string]*domain.SessionRun
	rankHistory   map[string]*domain.RankHistoryEntry
	royaltyLog    []*domain.RoyaltyLogEntry
	epins         map[string]*domain.EPIN
	products      map[string]*domain.FranchiseProduct
	sales         []*domain.FranchiseSale

	seq int64
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		users:         make(map[string]*domain.User),
		pvEntries:     make(map[string]*domain.PVEntry),
		pendingIncome: make(map[string]*domain.PendingIncome),
		wallets:       make(map[string]*domain.Wallet),
		fundPool:      &domain.FundPool{},
		sessionRuns:   make(map[string]*domain.SessionRun),
		rankHistory:   make(map[string]*domain.RankHistoryEntry),
		epins:         make(map[string]*domain.EPIN),
		products:      make(map[string]*domain.FranchiseProduct),
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(ctx context.Context) error { return nil }

func sessionKey(dateKey string, sessionIndex int) string {
	return fmt.Sprintf("%s#%d", dateKey, sessionIndex)
}

// ===========================================================================
// UserRepo
// ===========================================================================

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.NewNotFoundError("user", id)
	}
	cp := *u
	cp.RankIndex = cloneIntMap(u.RankIndex)
	cp.IncomePairs = cloneIntMap(u.IncomePairs)
	cp.CutoffPairs = cloneIntMap(u.CutoffPairs)
	return &cp, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("%w: user %s already exists", domain.ErrConflict, u.ID)
	}
	cp := *u
	cp.RankIndex = cloneIntMap(u.RankIndex)
	cp.IncomePairs = cloneIntMap(u.IncomePairs)
	cp.CutoffPairs = cloneIntMap(u.CutoffPairs)
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; !exists {
		return domain.NewNotFoundError("user", u.ID)
	}
	cp := *u
	cp.RankIndex = cloneIntMap(u.RankIndex)
	cp.IncomePairs = cloneIntMap(u.IncomePairs)
	cp.CutoffPairs = cloneIntMap(u.CutoffPairs)
	cp.UpdatedAt = time.Now()
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) ReserveChildSlot(ctx context.Context, parentID string, side domain.Side, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.users[parentID]
	if !ok {
		return domain.NewNotFoundError("user", parentID)
	}
	if side == domain.SideLeft {
		if parent.LeftChildID != "" {
			return fmt.Errorf("%w: left slot occupied on %s", domain.ErrConflict, parentID)
		}
		parent.LeftChildID = childID
	} else {
		if parent.RightChildID != "" {
			return fmt.Errorf("%w: right slot occupied on %s", domain.ErrConflict, parentID)
		}
		parent.RightChildID = childID
	}
	parent.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SponsorChain(ctx context.Context, userID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := make([]string, 0, limit)
	current := userID
	for len(chain) < limit {
		u, ok := s.users[current]
		if !ok || u.SponsorID == "" {
			break
		}
		chain = append(chain, u.SponsorID)
		current = u.SponsorID
	}
	return chain, nil
}

func (s *Store) DirectSponsoreeCount(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, u := range s.users {
		if u.SponsorID == userID {
			count++
		}
	}
	return count, nil
}

func (s *Store) DownlineCountAtDepth(ctx context.Context, userID string, depth int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if depth <= 0 {
		return 0, fmt.Errorf("%w: depth must be positive", domain.ErrValidation)
	}
	frontier := []string{userID}
	for d := 0; d < depth; d++ {
		next := make([]string, 0)
		for _, u := range s.users {
			for _, f := range frontier {
				if u.SponsorID == f {
					next = append(next, u.ID)
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return len(frontier), nil
}

func (s *Store) ListActiveSilverHolders(ctx context.Context) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.User
	for _, u := range s.users {
		if u.HasActivePackage(plan.Silver) {
			cp := *u
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TotalRoyaltyReceived < result[j].TotalRoyaltyReceived
	})
	return result, nil
}

func (s *Store) ListByMinRank(ctx context.Context, minRankIndex int) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.User
	for _, u := range s.users {
		best := -1
		for _, idx := range u.RankIndex {
			if idx > best {
				best = idx
			}
		}
		if best >= minRankIndex {
			cp := *u
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func cloneIntMap(m map[plan.PackageCode]int) map[plan.PackageCode]int {
	out := make(map[plan.PackageCode]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
