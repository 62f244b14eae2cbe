// Package franchise processes franchise product sales (spec.md §4.K):
// atomic stock decrement, holder and referrer commission splits, and a
// buyer-side BV credit that triggers the usual BV distributor fan-out.
// Grounded in the teacher's gasbank fee-deduction step
// (services/gasbank/service.go), which couples an inventory-style
// decrement to a wallet credit in the same unit of work.
package franchise

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/bvledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/metrics"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// SaleRequest is the input to ProcessSale (spec.md §4.K).
type SaleRequest struct {
	ProductID      string
	BuyerUserID    string
	ReferrerUserID string // "" if no referrer
	Qty            int64
}

// Service implements franchise sale processing.
type Service struct {
	store    store.Store
	ledger   *ledger.Service
	bvLedger *bvledger.Service
	bus      *eventbus.Bus
	log      *logging.Logger
}

// New constructs a franchise Service.
func New(s store.Store, l *ledger.Service, bv *bvledger.Service, bus *eventbus.Bus) *Service {
	return &Service{store: s, ledger: l, bvLedger: bv, bus: bus, log: logging.Default()}
}

// ProcessSale runs the 5-step franchise sale transaction (spec.md
// §4.K): decrement stock, append the sale, split commissions between
// holder and referrer, then credit the buyer's BV (fanning out level
// income and the royalty pool).
func (s *Service) ProcessSale(ctx context.Context, req SaleRequest) (*domain.FranchiseSale, error) {
	if req.Qty <= 0 {
		req.Qty = 1
	}

	product, err := s.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DecrementStock(ctx, req.ProductID, req.Qty); err != nil {
		return nil, err
	}

	totalPrice := product.SalePrice * req.Qty
	totalBV := product.BVEquivalent * req.Qty

	holderCommission := money.PercentOf(money.FromWhole(totalPrice), plan.FranchiseHolderMinPercent)
	referrerIncome := money.PercentOf(money.FromWhole(totalBV), plan.FranchiseReferrerPercent)

	sale := &domain.FranchiseSale{
		ProductID:        req.ProductID,
		BuyerUserID:      req.BuyerUserID,
		ReferrerUserID:   req.ReferrerUserID,
		SalePrice:        totalPrice,
		BVEquivalent:     totalBV,
		HolderCommission: holderCommission,
		ReferrerIncome:   referrerIncome,
		CreatedAt:        time.Now(),
	}
	if err := s.store.AppendSale(ctx, sale); err != nil {
		return nil, err
	}

	if holderCommission > 0 && product.OwnerUserID != "" {
		if _, err := s.ledger.Credit(ctx, product.OwnerUserID, holderCommission, domain.CategoryFranchiseHolder,
			[]string{sale.ID}, fmt.Sprintf("franchise holder commission on %s", req.ProductID)); err != nil {
			return nil, err
		}
	}
	if referrerIncome > 0 && req.ReferrerUserID != "" {
		if _, err := s.ledger.Credit(ctx, req.ReferrerUserID, referrerIncome, domain.CategoryFranchiseReferrer,
			[]string{sale.ID}, fmt.Sprintf("franchise referrer income on %s", req.ProductID)); err != nil {
			return nil, err
		}
	}

	if totalBV > 0 {
		if err := s.bvLedger.CreditBV(ctx, req.BuyerUserID, totalBV, "franchise"); err != nil {
			return nil, err
		}
	}

	s.bus.Publish(ctx, eventbus.FranchiseSaleEvent{
		SaleID:         sale.ID,
		ProductID:      req.ProductID,
		BuyerUserID:    req.BuyerUserID,
		ReferrerUserID: req.ReferrerUserID,
		BVEquivalent:   totalBV,
	})

	metrics.FranchiseSalesTotal.WithLabelValues(req.ProductID).Inc()
	s.log.WithFields(map[string]interface{}{
		"product_id": req.ProductID,
		"buyer":      req.BuyerUserID,
		"sale_price": totalPrice,
	}).Info("franchise sale processed")

	return sale, nil
}
