package memory

import (
	"context"
	"fmt"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
)

// SeedFranchiseProduct inserts or replaces a product row directly,
// bypassing the store interface. Franchise product catalog management
// is out of scope for this engine (products are provisioned by
// whatever inventory system owns them); this exists so tests and
// local fixtures can exercise internal/franchise without one.
func (s *Store) SeedFranchiseProduct(p *domain.FranchiseProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[cp.ID] = &cp
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.FranchiseProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, domain.NewNotFoundError("franchise_product", id)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) DecrementStock(ctx context.Context, productID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return domain.NewNotFoundError("franchise_product", productID)
	}
	if p.Stock < qty {
		return fmt.Errorf("%w: product %s has %d, need %d", domain.ErrInsufficientStock, productID, p.Stock, qty)
	}
	p.Stock -= qty
	return nil
}

func (s *Store) AppendSale(ctx context.Context, sale *domain.FranchiseSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sale.ID == "" {
		sale.ID = s.nextID("sale")
	}
	cp := *sale
	s.sales = append(s.sales, &cp)
	return nil
}
