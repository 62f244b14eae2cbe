package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
)

type franchiseProductRow struct {
	ID           string    `db:"id"`
	FranchiseID  string    `db:"franchise_id"`
	OwnerUserID  string    `db:"owner_user_id"`
	Name         string    `db:"name"`
	Stock        int64     `db:"stock"`
	SalePrice    int64     `db:"sale_price"`
	BVEquivalent int64     `db:"bv_equivalent"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r *franchiseProductRow) toDomain() *domain.FranchiseProduct {
	return &domain.FranchiseProduct{
		ID:           r.ID,
		FranchiseID:  r.FranchiseID,
		OwnerUserID:  r.OwnerUserID,
		Name:         r.Name,
		Stock:        r.Stock,
		SalePrice:    r.SalePrice,
		BVEquivalent: r.BVEquivalent,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.FranchiseProduct, error) {
	var row franchiseProductRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM franchise_products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("franchise_product", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// DecrementStock is a single atomic UPDATE guarded by stock >= qty, so
// a short sale never needs a separate read-then-write race window
// (spec.md §4.K step 1).
func (s *Store) DecrementStock(ctx context.Context, productID string, qty int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE franchise_products SET stock = stock - $1
		WHERE id = $2 AND stock >= $1
	`, qty, productID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: product %s has insufficient stock", domain.ErrInsufficientStock, productID)
	}
	return nil
}

func (s *Store) AppendSale(ctx context.Context, sale *domain.FranchiseSale) error {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO franchise_sales
			(id, product_id, buyer_user_id, referrer_user_id, sale_price,
			 bv_equivalent, holder_commission, referrer_income, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sale.ID, sale.ProductID, sale.BuyerUserID, sale.ReferrerUserID, sale.SalePrice,
		sale.BVEquivalent, sale.HolderCommission, sale.ReferrerIncome, sale.CreatedAt)
	return err
}
