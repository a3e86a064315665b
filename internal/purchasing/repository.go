package purchasing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawmart/pawmart/internal/inventory"
	"github.com/pawmart/pawmart/internal/platform/db"
)

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of one purchase mutation.
// Ledger gives access to the stock ledger bound to the same transaction, so
// the order document and every stock movement commit as one unit.
type TxRepository interface {
	Ledger() inventory.TxRepository
	InsertPurchase(ctx context.Context, p Purchase) (int64, error)
	InsertLine(ctx context.Context, purchaseID int64, line Line) error
	UpdatePurchase(ctx context.Context, p Purchase) error
	DeleteLines(ctx context.Context, purchaseID int64) error
	DeletePurchase(ctx context.Context, purchaseID int64) error
	GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error)
	LastPurchaseCode(ctx context.Context) (string, error)
}

type txRepository struct {
	tx     pgx.Tx
	ledger inventory.TxRepository
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: inventory.NewTxRepository(tx)})
	})
}

func (r *txRepository) Ledger() inventory.TxRepository {
	return r.ledger
}

func (r *txRepository) InsertPurchase(ctx context.Context, p Purchase) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchases
(purchase_code, supplier_id, subtotal, other_charges, discount, grand_total,
amount_paid, amount_due, payment_type, status, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW()) RETURNING id`,
		p.PurchaseCode, p.SupplierID, p.Summary.Subtotal, p.Summary.OtherCharges,
		p.Summary.Discount, p.Summary.GrandTotal, p.Payment.AmountPaid, p.Payment.AmountDue,
		p.Payment.Type, string(p.Status), p.Notes, p.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, purchaseID int64, line Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_lines
(purchase_id, variant_id, sku, quantity, unit_price, tax_percent, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		purchaseID, line.VariantID, line.SKU, line.Quantity, line.UnitPrice,
		line.TaxPercent, line.TaxAmount, line.LineTotal)
	return err
}

func (r *txRepository) UpdatePurchase(ctx context.Context, p Purchase) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchases SET supplier_id=$2, subtotal=$3,
other_charges=$4, discount=$5, grand_total=$6, amount_paid=$7, amount_due=$8,
payment_type=$9, status=$10, notes=$11, updated_at=NOW() WHERE id=$1`,
		p.ID, p.SupplierID, p.Summary.Subtotal, p.Summary.OtherCharges, p.Summary.Discount,
		p.Summary.GrandTotal, p.Payment.AmountPaid, p.Payment.AmountDue, p.Payment.Type,
		string(p.Status), p.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

func (r *txRepository) DeleteLines(ctx context.Context, purchaseID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_lines WHERE purchase_id=$1`, purchaseID)
	return err
}

func (r *txRepository) DeletePurchase(ctx context.Context, purchaseID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM purchases WHERE id=$1`, purchaseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

func (r *txRepository) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	row := r.tx.QueryRow(ctx, purchaseSelect+` WHERE p.id=$1 FOR UPDATE OF p`, id)
	p, err := scanPurchase(row)
	if err != nil {
		return Purchase{}, err
	}
	p.Lines, err = loadLines(ctx, r.tx, id)
	return p, err
}

func (r *txRepository) LastPurchaseCode(ctx context.Context) (string, error) {
	var code string
	err := r.tx.QueryRow(ctx, `SELECT purchase_code FROM purchases ORDER BY id DESC LIMIT 1`).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return code, err
}

const purchaseSelect = `SELECT p.id, p.purchase_code, p.supplier_id, COALESCE(s.name, 'Unknown'),
p.subtotal, p.other_charges, p.discount, p.grand_total,
p.amount_paid, p.amount_due, p.payment_type, p.status, p.notes,
p.created_by, p.created_at, p.updated_at
FROM purchases p
LEFT JOIN suppliers s ON s.id = p.supplier_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.PurchaseCode, &p.SupplierID, &p.SupplierName,
		&p.Summary.Subtotal, &p.Summary.OtherCharges, &p.Summary.Discount, &p.Summary.GrandTotal,
		&p.Payment.AmountPaid, &p.Payment.AmountDue, &p.Payment.Type, &p.Status, &p.Notes,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ErrPurchaseNotFound
	}
	return p, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, purchaseID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, variant_id, sku, quantity, unit_price,
tax_percent, tax_amount, line_total FROM purchase_lines WHERE purchase_id=$1 ORDER BY id`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.VariantID, &line.SKU, &line.Quantity,
			&line.UnitPrice, &line.TaxPercent, &line.TaxAmount, &line.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// GetPurchase loads one purchase with its lines.
func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	row := r.pool.QueryRow(ctx, purchaseSelect+` WHERE p.id=$1`, id)
	p, err := scanPurchase(row)
	if err != nil {
		return Purchase{}, err
	}
	p.Lines, err = loadLines(ctx, r.pool, id)
	return p, err
}

const listBase = `FROM purchases p
LEFT JOIN suppliers s ON s.id = p.supplier_id
WHERE ($1 = '' OR p.status = $1)
AND ($2 = 0 OR p.supplier_id = $2)
AND ($3 = '' OR p.purchase_code ILIKE '%'||$3||'%' OR s.name ILIKE '%'||$3||'%')`

// List pages purchases newest first, lines excluded.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) `+listBase,
		string(filter.Status), filter.SupplierID, filter.Search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT p.id, p.purchase_code, p.supplier_id, COALESCE(s.name, 'Unknown'),
p.subtotal, p.other_charges, p.discount, p.grand_total,
p.amount_paid, p.amount_due, p.payment_type, p.status, p.notes,
p.created_by, p.created_at, p.updated_at `+listBase+`
ORDER BY p.id DESC LIMIT $4 OFFSET $5`,
		string(filter.Status), filter.SupplierID, filter.Search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var purchases []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

// isUniqueViolation reports a postgres duplicate-key error, used by the
// purchase code generator to retry on concurrent inserts.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
