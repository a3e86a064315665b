package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads variant data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const variantColumns = `id, product_id, COALESCE(sku, ''), attribute, value, unit_id,
purchase_price, price, discount_price, stock_quantity, reserved_quantity,
expiry_date, status, low_stock_threshold, deleted_at, created_at, updated_at`

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Attribute, &v.Value, &v.UnitID,
		&v.PurchasePrice, &v.Price, &v.DiscountPrice, &v.StockQuantity, &v.ReservedQuantity,
		&v.ExpiryDate, &v.Status, &v.LowStockThreshold, &v.DeletedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variant{}, ErrVariantNotFound
		}
		return Variant{}, err
	}
	return v, nil
}

// GetVariant loads a variant by id, including soft-deleted rows so callers
// can distinguish deleted from missing.
func (r *Repository) GetVariant(ctx context.Context, id int64) (Variant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+variantColumns+` FROM variants WHERE id=$1`, id)
	return scanVariant(row)
}

// GetSnapshot loads a variant with product, brand, category and unit names.
func (r *Repository) GetSnapshot(ctx context.Context, id int64) (Snapshot, error) {
	row := r.pool.QueryRow(ctx, `SELECT v.id, v.product_id, COALESCE(v.sku, ''), v.attribute, v.value, v.unit_id,
v.purchase_price, v.price, v.discount_price, v.stock_quantity, v.reserved_quantity,
v.expiry_date, v.status, v.low_stock_threshold, v.deleted_at, v.created_at, v.updated_at,
COALESCE(p.name, 'Unknown'), COALESCE(b.name, 'Unknown'), COALESCE(c.name, 'Unknown'), COALESCE(u.name, 'Unknown')
FROM variants v
LEFT JOIN products p ON p.id = v.product_id
LEFT JOIN brands b ON b.id = p.brand_id
LEFT JOIN categories c ON c.id = p.category_id
LEFT JOIN units u ON u.id = v.unit_id
WHERE v.id=$1`, id)

	var s Snapshot
	err := row.Scan(&s.ID, &s.ProductID, &s.SKU, &s.Attribute, &s.Value, &s.UnitID,
		&s.PurchasePrice, &s.Price, &s.DiscountPrice, &s.StockQuantity, &s.ReservedQuantity,
		&s.ExpiryDate, &s.Status, &s.LowStockThreshold, &s.DeletedAt, &s.CreatedAt, &s.UpdatedAt,
		&s.ProductName, &s.BrandName, &s.CategoryName, &s.UnitName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrVariantNotFound
		}
		return Snapshot{}, err
	}
	return s, nil
}
