package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
)

func (s *Store) CreateEPINs(ctx context.Context, epins []*domain.EPIN) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range epins {
		if _, exists := s.epins[e.Code]; exists {
			return fmt.Errorf("%w: epin %s already exists", domain.ErrConflict, e.Code)
		}
	}
	for _, e := range epins {
		cp := *e
		s.epins[cp.Code] = &cp
	}
	return nil
}

func (s *Store) GetEPIN(ctx context.Context, code string) (*domain.EPIN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.epins[code]
	if !ok {
		return nil, domain.NewNotFoundError("epin", code)
	}
	cp := *e
	return &cp, nil
}

// TransferEPIN reassigns ownership. Unlimited transfers are allowed
// before use; once IsUsed is true the token is terminal (spec.md §4.J).
func (s *Store) TransferEPIN(ctx context.Context, code, toUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.epins[code]
	if !ok {
		return domain.NewNotFoundError("epin", code)
	}
	if e.IsUsed {
		return fmt.Errorf("%w: epin %s already used", domain.ErrAlreadyProcessed, code)
	}
	e.OwnerUserID = toUserID
	e.TransferCount++
	return nil
}

func (s *Store) ReserveEPIN(ctx context.Context, code, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.epins[code]
	if !ok {
		return domain.NewNotFoundError("epin", code)
	}
	if e.IsUsed {
		return fmt.Errorf("%w: epin %s already used", domain.ErrAlreadyProcessed, code)
	}
	if e.OwnerUserID != "" && e.OwnerUserID != userID {
		return fmt.Errorf("%w: epin %s not owned by %s", domain.ErrConflict, code, userID)
	}
	e.OwnerUserID = userID
	return nil
}

func (s *Store) ConsumeEPIN(ctx context.Context, code, userID string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.epins[code]
	if !ok {
		return domain.NewNotFoundError("epin", code)
	}
	if e.IsUsed {
		return fmt.Errorf("%w: epin %s already used", domain.ErrAlreadyProcessed, code)
	}
	e.IsUsed = true
	e.UsedByUserID = userID
	e.UsedAt = usedAt
	return nil
}
