package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawmart/pawmart/internal/catalog"
	"github.com/pawmart/pawmart/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of one adjustment. The
// variant update and the movement insert commit or roll back together.
type TxRepository interface {
	GetVariantForUpdate(ctx context.Context, variantID int64) (catalog.Variant, error)
	UpdateVariantStock(ctx context.Context, variantID int64, quantity int64, status catalog.Status, expiry *time.Time, setExpiry bool) error
	UpdateVariantPurchasePrice(ctx context.Context, variantID int64, price float64) error
	InsertMovement(ctx context.Context, m StockMovement) (int64, error)
	SumMovements(ctx context.Context, variantID int64) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction so other modules (the
// purchase workflow) can drive ledger writes inside their own transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) GetVariantForUpdate(ctx context.Context, variantID int64) (catalog.Variant, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, product_id, COALESCE(sku, ''), attribute, value, unit_id,
purchase_price, price, discount_price, stock_quantity, reserved_quantity,
expiry_date, status, low_stock_threshold, deleted_at, created_at, updated_at
FROM variants WHERE id=$1 FOR UPDATE`, variantID)

	var v catalog.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Attribute, &v.Value, &v.UnitID,
		&v.PurchasePrice, &v.Price, &v.DiscountPrice, &v.StockQuantity, &v.ReservedQuantity,
		&v.ExpiryDate, &v.Status, &v.LowStockThreshold, &v.DeletedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Variant{}, catalog.ErrVariantNotFound
		}
		return catalog.Variant{}, err
	}
	return v, nil
}

func (r *txRepository) UpdateVariantStock(ctx context.Context, variantID int64, quantity int64, status catalog.Status, expiry *time.Time, setExpiry bool) error {
	if setExpiry {
		_, err := r.tx.Exec(ctx, `UPDATE variants SET stock_quantity=$2, status=$3, expiry_date=$4, updated_at=NOW() WHERE id=$1`,
			variantID, quantity, string(status), expiry)
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE variants SET stock_quantity=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		variantID, quantity, string(status))
	return err
}

func (r *txRepository) UpdateVariantPurchasePrice(ctx context.Context, variantID int64, price float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE variants SET purchase_price=$2, updated_at=NOW() WHERE id=$1`, variantID, price)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(variant_id, sku, previous_quantity, new_quantity, change_quantity, is_stock_increase, movement_type, reason, reference_id, performed_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		m.VariantID, m.SKU, m.PreviousQuantity, m.NewQuantity, m.ChangeQuantity,
		m.IsStockIncrease, m.MovementType, m.Reason, m.ReferenceID, m.PerformedBy, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) SumMovements(ctx context.Context, variantID int64) (int64, error) {
	var sum int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(change_quantity), 0) FROM stock_movements WHERE variant_id=$1`, variantID).Scan(&sum)
	return sum, err
}

const dashboardBase = `FROM stock_movements m
LEFT JOIN variants v ON v.id = m.variant_id
LEFT JOIN products p ON p.id = v.product_id
LEFT JOIN brands b ON b.id = p.brand_id
WHERE ($1 = '' OR m.sku ILIKE '%'||$1||'%' OR m.reference_id ILIKE '%'||$1||'%' OR p.name ILIKE '%'||$1||'%')
AND ($2 = '' OR m.movement_type = $2)
AND m.created_at BETWEEN COALESCE($3, '-infinity'::timestamptz) AND COALESCE($4, 'infinity'::timestamptz)`

// Dashboard lists movements joined with catalog context, newest first.
func (r *Repository) Dashboard(ctx context.Context, filter DashboardFilter) ([]DashboardEntry, int, error) {
	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	var total int
	countQuery := `SELECT COUNT(*) ` + dashboardBase
	if err := r.pool.QueryRow(ctx, countQuery, filter.Search, filter.MovementType, nullTime(filter.From), nullTime(filter.To)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT m.id, m.variant_id, m.sku, m.previous_quantity, m.new_quantity, m.change_quantity,
m.is_stock_increase, m.movement_type, m.reason, m.reference_id, m.performed_by, m.created_at,
COALESCE(p.name, 'Unknown'), COALESCE(b.name, 'Unknown'), COALESCE(v.attribute, ''), COALESCE(v.value, '') ` +
		dashboardBase + `
ORDER BY m.created_at DESC, m.id DESC
LIMIT $5 OFFSET $6`

	rows, err := r.pool.Query(ctx, query, filter.Search, filter.MovementType, nullTime(filter.From), nullTime(filter.To), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []DashboardEntry{}
	for rows.Next() {
		var e DashboardEntry
		if err := rows.Scan(&e.ID, &e.VariantID, &e.SKU, &e.PreviousQuantity, &e.NewQuantity, &e.ChangeQuantity,
			&e.IsStockIncrease, &e.MovementType, &e.Reason, &e.ReferenceID, &e.PerformedBy, &e.CreatedAt,
			&e.ProductName, &e.BrandName, &e.Attribute, &e.Value); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Summary aggregates the filtered movement set.
func (r *Repository) Summary(ctx context.Context, filter DashboardFilter) (DashboardSummary, error) {
	query := `SELECT COUNT(*),
COALESCE(SUM(CASE WHEN m.change_quantity > 0 THEN m.change_quantity ELSE 0 END), 0),
COALESCE(SUM(CASE WHEN m.change_quantity < 0 THEN -m.change_quantity ELSE 0 END), 0) ` + dashboardBase

	var s DashboardSummary
	err := r.pool.QueryRow(ctx, query, filter.Search, filter.MovementType, nullTime(filter.From), nullTime(filter.To)).
		Scan(&s.TotalMovements, &s.TotalIn, &s.TotalOut)
	return s, err
}

// MovementsByVariant pages the ledger for one variant, newest first.
func (r *Repository) MovementsByVariant(ctx context.Context, variantID int64, limit, offset int) ([]StockMovement, int, error) {
	if limit <= 0 {
		limit = 20
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE variant_id=$1`, variantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, variant_id, sku, previous_quantity, new_quantity, change_quantity,
is_stock_increase, movement_type, reason, reference_id, performed_by, created_at
FROM stock_movements WHERE variant_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, variantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	movements := []StockMovement{}
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.VariantID, &m.SKU, &m.PreviousQuantity, &m.NewQuantity, &m.ChangeQuantity,
			&m.IsStockIncrease, &m.MovementType, &m.Reason, &m.ReferenceID, &m.PerformedBy, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// GetMovement loads one ledger entry.
func (r *Repository) GetMovement(ctx context.Context, id int64) (StockMovement, error) {
	var m StockMovement
	err := r.pool.QueryRow(ctx, `SELECT id, variant_id, sku, previous_quantity, new_quantity, change_quantity,
is_stock_increase, movement_type, reason, reference_id, performed_by, created_at
FROM stock_movements WHERE id=$1`, id).
		Scan(&m.ID, &m.VariantID, &m.SKU, &m.PreviousQuantity, &m.NewQuantity, &m.ChangeQuantity,
			&m.IsStockIncrease, &m.MovementType, &m.Reason, &m.ReferenceID, &m.PerformedBy, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockMovement{}, ErrMovementNotFound
		}
		return StockMovement{}, err
	}
	return m, nil
}

// LowStock lists live variants at or below their effective threshold.
func (r *Repository) LowStock(ctx context.Context, defaultThreshold int64, limit int) ([]LowStockItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT v.id, COALESCE(v.sku, ''), COALESCE(p.name, 'Unknown'),
v.attribute, v.value, v.stock_quantity,
CASE WHEN v.low_stock_threshold > 0 THEN v.low_stock_threshold ELSE $1 END AS threshold
FROM variants v
LEFT JOIN products p ON p.id = v.product_id
WHERE v.deleted_at IS NULL AND v.status <> 'discontinued'
AND v.stock_quantity <= CASE WHEN v.low_stock_threshold > 0 THEN v.low_stock_threshold ELSE $1 END
ORDER BY v.stock_quantity ASC, v.id ASC
LIMIT $2`, defaultThreshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []LowStockItem{}
	for rows.Next() {
		var it LowStockItem
		if err := rows.Scan(&it.VariantID, &it.SKU, &it.ProductName, &it.Attribute, &it.Value, &it.StockQuantity, &it.Threshold); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Expiring lists variants expired or expiring within the look-ahead window.
func (r *Repository) Expiring(ctx context.Context, within time.Duration, now time.Time, limit int) ([]ExpiringItem, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := now.Add(within)
	rows, err := r.pool.Query(ctx, `SELECT v.id, COALESCE(v.sku, ''), COALESCE(p.name, 'Unknown'),
v.stock_quantity, v.expiry_date
FROM variants v
LEFT JOIN products p ON p.id = v.product_id
WHERE v.deleted_at IS NULL AND v.expiry_date IS NOT NULL AND v.expiry_date <= $1
ORDER BY v.expiry_date ASC, v.id ASC
LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ExpiringItem{}
	for rows.Next() {
		var it ExpiringItem
		if err := rows.Scan(&it.VariantID, &it.SKU, &it.ProductName, &it.StockQuantity, &it.ExpiryDate); err != nil {
			return nil, err
		}
		it.Expired = it.ExpiryDate.Before(now)
		items = append(items, it)
	}
	return items, rows.Err()
}

// LiveVariantIDs returns ids of non-deleted variants for the reconciliation sweep.
func (r *Repository) LiveVariantIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM variants WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
