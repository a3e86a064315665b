package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pawmart/pawmart/internal/catalog"
	"github.com/pawmart/pawmart/internal/inventory"
	"github.com/pawmart/pawmart/internal/platform/cache"
	"github.com/pawmart/pawmart/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	List(ctx context.Context, filter ListFilter) ([]Purchase, int, error)
}

// LedgerPort exposes the stock ledger's transaction-scoped adjustment. Every
// purchase mutation drives its stock effects through this single entry point.
type LedgerPort interface {
	Apply(ctx context.Context, tx inventory.TxRepository, input inventory.AdjustInput) (inventory.MovementResult, error)
}

// SupplierPort resolves supplier references.
type SupplierPort interface {
	SupplierExists(ctx context.Context, id int64) (bool, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the purchase workflow.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	suppliers SupplierPort
	audit     AuditPort
	cache     *cache.Cache
	logger    *slog.Logger
}

// NewService constructs the purchase service.
func NewService(repo RepositoryPort, ledger LedgerPort, suppliers SupplierPort, audit AuditPort, projections *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, suppliers: suppliers, audit: audit, cache: projections, logger: logger}
}

// createAttempts bounds the sequential purchase-code retries before the
// random fallback kicks in.
const createAttempts = 3

// Create validates, prices and persists a new purchase order, receiving its
// stock into the ledger in the same transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (Purchase, error) {
	if input.ActorID == 0 {
		return Purchase{}, shared.ErrActorRequired
	}
	lines, summary, err := buildLines(input.Lines, input.OtherCharges, input.Discount)
	if err != nil {
		return Purchase{}, err
	}
	payment, err := buildPayment(input.AmountPaid, input.PaymentType, summary.GrandTotal)
	if err != nil {
		return Purchase{}, err
	}
	status, err := resolveStatus(input.Status, payment.AmountPaid, summary.GrandTotal)
	if err != nil {
		return Purchase{}, err
	}

	ok, err := s.suppliers.SupplierExists(ctx, input.SupplierID)
	if err != nil {
		return Purchase{}, err
	}
	if !ok {
		return Purchase{}, ErrSupplierNotFound
	}

	var created Purchase
	for attempt := 0; attempt < createAttempts; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			last, err := tx.LastPurchaseCode(ctx)
			if err != nil {
				return err
			}
			code := NextCode(last)
			if attempt == createAttempts-1 {
				code = RandomCode()
			}

			p := Purchase{
				PurchaseCode: code,
				SupplierID:   input.SupplierID,
				Summary:      summary,
				Payment:      payment,
				Status:       status,
				Notes:        strings.TrimSpace(input.Notes),
				CreatedBy:    input.ActorID,
			}
			id, err := tx.InsertPurchase(ctx, p)
			if err != nil {
				return err
			}
			p.ID = id

			for i := range lines {
				variant, err := s.receiveLine(ctx, tx, &lines[i], code, input.ActorID)
				if err != nil {
					return err
				}
				lines[i].SKU = variant.SKU
				if err := tx.InsertLine(ctx, id, lines[i]); err != nil {
					return err
				}
			}
			p.Lines = lines
			created = p
			return nil
		})
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return Purchase{}, err
	}

	s.afterCommit(ctx, "purchase:create", created, input.ActorID)
	return created, nil
}

// receiveLine checks the variant is purchasable, books the stock increase and
// refreshes the stored purchase price. The transaction's row lock is taken by
// the ledger call itself.
func (s *Service) receiveLine(ctx context.Context, tx TxRepository, line *Line, code string, actorID int64) (catalog.Variant, error) {
	variant, err := tx.Ledger().GetVariantForUpdate(ctx, line.VariantID)
	if err != nil {
		return catalog.Variant{}, fmt.Errorf("%w: variant %d", ErrVariantUnavailable, line.VariantID)
	}
	if variant.Deleted() || variant.Status != catalog.StatusActive {
		return catalog.Variant{}, fmt.Errorf("%w: variant %d", ErrVariantUnavailable, line.VariantID)
	}
	_, err = s.ledger.Apply(ctx, tx.Ledger(), inventory.AdjustInput{
		VariantID:      line.VariantID,
		QuantityChange: line.Quantity,
		IsIncrease:     true,
		MovementType:   inventory.MovementTypePurchase,
		Reason:         fmt.Sprintf("Purchase %s", code),
		ReferenceID:    code,
		ActorID:        actorID,
	})
	if err != nil {
		return catalog.Variant{}, err
	}
	if round2(line.UnitPrice) != round2(variant.PurchasePrice) {
		if err := tx.Ledger().UpdateVariantPurchasePrice(ctx, line.VariantID, round2(line.UnitPrice)); err != nil {
			return catalog.Variant{}, err
		}
	}
	return variant, nil
}

// Update edits an open order, or cancels it when the requested status is
// cancelled. Completed and cancelled orders reject all edits.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Purchase, error) {
	if input.ActorID == 0 {
		return Purchase{}, shared.ErrActorRequired
	}

	action := "purchase:update"
	var updated Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return ErrOrderLocked
		}

		if input.Status == StatusCancelled {
			action = "purchase:cancel"
			updated, err = s.cancel(ctx, tx, current, input.ActorID)
			return err
		}

		updated, err = s.edit(ctx, tx, current, input)
		return err
	})
	if err != nil {
		return Purchase{}, err
	}

	s.afterCommit(ctx, action, updated, input.ActorID)
	return updated, nil
}

// cancel returns every line's stock, zeroes the payment and freezes the order.
// Lines and totals are preserved for audit.
func (s *Service) cancel(ctx context.Context, tx TxRepository, current Purchase, actorID int64) (Purchase, error) {
	for _, line := range current.Lines {
		_, err := s.ledger.Apply(ctx, tx.Ledger(), inventory.AdjustInput{
			VariantID:      line.VariantID,
			QuantityChange: line.Quantity,
			IsIncrease:     false,
			MovementType:   inventory.MovementTypeCancelled,
			Reason:         fmt.Sprintf("Purchase %s cancelled", current.PurchaseCode),
			ReferenceID:    current.PurchaseCode,
			ActorID:        actorID,
		})
		if err != nil {
			return Purchase{}, err
		}
	}

	current.Payment = Payment{AmountPaid: 0, AmountDue: 0, Type: current.Payment.Type}
	current.Status = StatusCancelled
	if !strings.Contains(current.Notes, cancelledMarker) {
		current.Notes = strings.TrimSpace(current.Notes + " " + cancelledMarker)
	}
	if err := tx.UpdatePurchase(ctx, current); err != nil {
		return Purchase{}, err
	}
	return current, nil
}

// edit reprices the order against the new line set and reconciles the ledger
// line by line: decreases for shrunk or removed lines, increases for new or
// grown ones.
func (s *Service) edit(ctx context.Context, tx TxRepository, current Purchase, input UpdateInput) (Purchase, error) {
	lines, summary, err := buildLines(input.Lines, input.OtherCharges, input.Discount)
	if err != nil {
		return Purchase{}, err
	}
	payment, err := buildPayment(input.AmountPaid, input.PaymentType, summary.GrandTotal)
	if err != nil {
		return Purchase{}, err
	}
	status, err := resolveStatus(input.Status, payment.AmountPaid, summary.GrandTotal)
	if err != nil {
		return Purchase{}, err
	}

	supplierID := current.SupplierID
	if input.SupplierID != 0 && input.SupplierID != current.SupplierID {
		ok, err := s.suppliers.SupplierExists(ctx, input.SupplierID)
		if err != nil {
			return Purchase{}, err
		}
		if !ok {
			return Purchase{}, ErrSupplierNotFound
		}
		supplierID = input.SupplierID
	}

	previous := make(map[int64]int64, len(current.Lines))
	for _, line := range current.Lines {
		previous[line.VariantID] = line.Quantity
	}

	// New and grown lines first: they also refresh SKU and purchase price.
	for i := range lines {
		variantID := lines[i].VariantID
		delta := lines[i].Quantity - previous[variantID]
		variant, err := s.adjustLine(ctx, tx, variantID, delta, current.PurchaseCode, input.ActorID, previous[variantID] == 0)
		if err != nil {
			return Purchase{}, err
		}
		lines[i].SKU = variant.SKU
		if round2(lines[i].UnitPrice) != round2(variant.PurchasePrice) {
			if err := tx.Ledger().UpdateVariantPurchasePrice(ctx, variantID, round2(lines[i].UnitPrice)); err != nil {
				return Purchase{}, err
			}
		}
		delete(previous, variantID)
	}

	// Whatever is left was removed outright: return the goods.
	for variantID, qty := range previous {
		if _, err := s.adjustLine(ctx, tx, variantID, -qty, current.PurchaseCode, input.ActorID, false); err != nil {
			return Purchase{}, err
		}
	}

	if err := tx.DeleteLines(ctx, current.ID); err != nil {
		return Purchase{}, err
	}
	for _, line := range lines {
		if err := tx.InsertLine(ctx, current.ID, line); err != nil {
			return Purchase{}, err
		}
	}

	current.SupplierID = supplierID
	current.Lines = lines
	current.Summary = summary
	current.Payment = payment
	current.Status = status
	current.Notes = strings.TrimSpace(input.Notes)
	if err := tx.UpdatePurchase(ctx, current); err != nil {
		return Purchase{}, err
	}
	return current, nil
}

// adjustLine books one signed quantity delta against the ledger. A zero delta
// still verifies the variant when the line is new to the order.
func (s *Service) adjustLine(ctx context.Context, tx TxRepository, variantID, delta int64, code string, actorID int64, isNew bool) (catalog.Variant, error) {
	variant, err := tx.Ledger().GetVariantForUpdate(ctx, variantID)
	if err != nil {
		return catalog.Variant{}, fmt.Errorf("%w: variant %d", ErrVariantUnavailable, variantID)
	}
	if variant.Deleted() {
		return catalog.Variant{}, fmt.Errorf("%w: variant %d", ErrVariantUnavailable, variantID)
	}
	if isNew && variant.Status != catalog.StatusActive {
		return catalog.Variant{}, fmt.Errorf("%w: variant %d", ErrVariantUnavailable, variantID)
	}
	if delta == 0 {
		return variant, nil
	}

	qty := delta
	if qty < 0 {
		qty = -qty
	}
	_, err = s.ledger.Apply(ctx, tx.Ledger(), inventory.AdjustInput{
		VariantID:      variantID,
		QuantityChange: qty,
		IsIncrease:     delta > 0,
		MovementType:   inventory.MovementTypePurchase,
		Reason:         fmt.Sprintf("Purchase %s updated", code),
		ReferenceID:    code,
		ActorID:        actorID,
	})
	if err != nil {
		return catalog.Variant{}, err
	}
	return variant, nil
}

// Delete is the destructive admin path: it reverses the remaining stock and
// removes the document outright. Normal flows cancel instead.
func (s *Service) Delete(ctx context.Context, id int64) error {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return err
	}
	if actor.Role != shared.RoleAdmin {
		return ErrAdminOnly
	}

	var removed Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// Cancelled orders already returned their stock.
		if current.Status != StatusCancelled {
			for _, line := range current.Lines {
				_, err := s.ledger.Apply(ctx, tx.Ledger(), inventory.AdjustInput{
					VariantID:      line.VariantID,
					QuantityChange: line.Quantity,
					IsIncrease:     false,
					MovementType:   inventory.MovementTypeCancelled,
					Reason:         fmt.Sprintf("Purchase %s deleted", current.PurchaseCode),
					ReferenceID:    current.PurchaseCode,
					ActorID:        actor.ID,
				})
				if err != nil {
					return err
				}
			}
		}
		if err := tx.DeleteLines(ctx, current.ID); err != nil {
			return err
		}
		if err := tx.DeletePurchase(ctx, current.ID); err != nil {
			return err
		}
		removed = current
		return nil
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, "purchase:delete", removed, actor.ID)
	return nil
}

// Get loads one purchase with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// Page bundles one purchase listing page.
type Page struct {
	Purchases  []Purchase        `json:"purchases"`
	Pagination shared.Pagination `json:"pagination"`
}

// List pages purchases with filters.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	purchases, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	return Page{Purchases: purchases, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

func (s *Service) afterCommit(ctx context.Context, action string, p Purchase, actorID int64) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump projection cache", slog.Any("error", err))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "purchase",
			EntityID: p.PurchaseCode,
			Meta: map[string]any{
				"purchase_id": p.ID,
				"supplier_id": p.SupplierID,
				"status":      string(p.Status),
				"grand_total": p.Summary.GrandTotal,
			},
		})
	}
}

// buildLines validates and prices the requested lines. Derived amounts are
// always recomputed server side.
func buildLines(inputs []LineInput, otherCharges, discount float64) ([]Line, Summary, error) {
	if len(inputs) == 0 {
		return nil, Summary{}, ErrNoLines
	}
	if otherCharges < 0 || discount < 0 {
		return nil, Summary{}, fmt.Errorf("%w: charges and discount cannot be negative", ErrAmountMismatch)
	}

	seen := make(map[int64]bool, len(inputs))
	lines := make([]Line, 0, len(inputs))
	var subtotal float64
	for i, in := range inputs {
		if in.VariantID <= 0 || in.Quantity < 1 || in.UnitPrice < 0 || in.TaxPercent < 0 {
			return nil, Summary{}, fmt.Errorf("%w: line %d", ErrInvalidLine, i+1)
		}
		if seen[in.VariantID] {
			return nil, Summary{}, fmt.Errorf("%w: line %d duplicates variant %d", ErrInvalidLine, i+1, in.VariantID)
		}
		seen[in.VariantID] = true

		taxAmount := round2(in.UnitPrice * float64(in.Quantity) * in.TaxPercent / 100)
		lineTotal := round2(in.UnitPrice*float64(in.Quantity) + taxAmount)
		subtotal += lineTotal
		lines = append(lines, Line{
			VariantID:  in.VariantID,
			Quantity:   in.Quantity,
			UnitPrice:  round2(in.UnitPrice),
			TaxPercent: in.TaxPercent,
			TaxAmount:  taxAmount,
			LineTotal:  lineTotal,
		})
	}

	summary := Summary{
		Subtotal:     round2(subtotal),
		OtherCharges: round2(otherCharges),
		Discount:     round2(discount),
	}
	summary.GrandTotal = round2(summary.Subtotal + summary.OtherCharges - summary.Discount)
	if summary.GrandTotal < 0 {
		return nil, Summary{}, fmt.Errorf("%w: grand total is negative", ErrAmountMismatch)
	}
	return lines, summary, nil
}

func buildPayment(amountPaid float64, paymentType string, grandTotal float64) (Payment, error) {
	paid := round2(amountPaid)
	if paid < 0 {
		return Payment{}, fmt.Errorf("%w: amount paid cannot be negative", ErrAmountMismatch)
	}
	if paid > grandTotal {
		return Payment{}, fmt.Errorf("%w: amount paid exceeds grand total", ErrAmountMismatch)
	}
	return Payment{
		AmountPaid: paid,
		AmountDue:  round2(grandTotal - paid),
		Type:       strings.TrimSpace(paymentType),
	}, nil
}
