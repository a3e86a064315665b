package purchasing

import (
	"errors"
	"math"
	"time"
)

// Status is the payment-driven purchase lifecycle state.
type Status string

const (
	// StatusPending marks an unpaid order.
	StatusPending Status = "pending"
	// StatusPartial marks a partially paid order.
	StatusPartial Status = "partial"
	// StatusCompleted marks a fully paid order. Terminal.
	StatusCompleted Status = "completed"
	// StatusCancelled marks a cancelled order with its stock returned. Terminal.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further edits.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Line is one purchased variant position. TaxAmount and LineTotal are
// derived, never accepted from the caller.
type Line struct {
	ID         int64   `json:"id"`
	VariantID  int64   `json:"variantId"`
	SKU        string  `json:"sku"`
	Quantity   int64   `json:"quantity"`
	UnitPrice  float64 `json:"unitPrice"`
	TaxPercent float64 `json:"taxPercent"`
	TaxAmount  float64 `json:"taxAmount"`
	LineTotal  float64 `json:"lineTotal"`
}

// Summary carries the order totals.
type Summary struct {
	Subtotal     float64 `json:"subtotal"`
	OtherCharges float64 `json:"otherCharges"`
	Discount     float64 `json:"discount"`
	GrandTotal   float64 `json:"grandTotal"`
}

// Payment carries the settlement state.
type Payment struct {
	AmountPaid float64 `json:"amountPaid"`
	AmountDue  float64 `json:"amountDue"`
	Type       string  `json:"type"`
}

// Purchase is a supplier purchase order with its owned lines.
type Purchase struct {
	ID           int64     `json:"id"`
	PurchaseCode string    `json:"purchaseCode"`
	SupplierID   int64     `json:"supplierId"`
	SupplierName string    `json:"supplierName,omitempty"`
	Lines        []Line    `json:"lines"`
	Summary      Summary   `json:"summary"`
	Payment      Payment   `json:"payment"`
	Status       Status    `json:"status"`
	Notes        string    `json:"notes"`
	CreatedBy    int64     `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// LineInput is one requested line.
type LineInput struct {
	VariantID  int64
	Quantity   int64
	UnitPrice  float64
	TaxPercent float64
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	SupplierID   int64
	Lines        []LineInput
	OtherCharges float64
	Discount     float64
	AmountPaid   float64
	PaymentType  string
	Status       Status
	Notes        string
	ActorID      int64
}

// UpdateInput describes an edit or a cancellation of an open order.
type UpdateInput struct {
	SupplierID   int64
	Lines        []LineInput
	OtherCharges float64
	Discount     float64
	AmountPaid   float64
	PaymentType  string
	Status       Status
	Notes        string
	ActorID      int64
}

// ListFilter narrows the purchase listing.
type ListFilter struct {
	Status     Status
	SupplierID int64
	Search     string
	Page       int
	PerPage    int
}

var (
	// ErrPurchaseNotFound indicates the purchase id does not resolve.
	ErrPurchaseNotFound = errors.New("purchasing: purchase not found")
	// ErrSupplierNotFound indicates the supplier reference does not resolve.
	ErrSupplierNotFound = errors.New("purchasing: supplier not found")
	// ErrVariantUnavailable indicates a line references a variant that is
	// deleted, discontinued or otherwise not purchasable.
	ErrVariantUnavailable = errors.New("purchasing: variant not available for purchase")
	// ErrNoLines indicates an order without line items.
	ErrNoLines = errors.New("purchasing: at least one line is required")
	// ErrInvalidLine indicates a line with a bad quantity, price or tax rate.
	ErrInvalidLine = errors.New("purchasing: invalid line")
	// ErrAmountMismatch indicates totals or payments that do not add up.
	ErrAmountMismatch = errors.New("purchasing: amounts do not add up")
	// ErrPaymentIncomplete rejects an explicit completed status while money is
	// still owed.
	ErrPaymentIncomplete = errors.New("purchasing: cannot complete with outstanding balance")
	// ErrInconsistentStatus rejects a requested status that contradicts the
	// payment amounts.
	ErrInconsistentStatus = errors.New("purchasing: requested status contradicts payment")
	// ErrOrderLocked rejects edits to a completed or cancelled order.
	ErrOrderLocked = errors.New("purchasing: order is completed or cancelled")
	// ErrAdminOnly guards the destructive hard-delete path.
	ErrAdminOnly = errors.New("purchasing: hard delete requires the admin role")
)

// cancelledMarker is appended to the notes when an order is cancelled.
const cancelledMarker = "[CANCELLED]"

// resolveStatus applies the lifecycle rule shared by create and update.
// amounts are already rounded to cents.
func resolveStatus(requested Status, amountPaid, grandTotal float64) (Status, error) {
	due := round2(grandTotal - amountPaid)
	switch requested {
	case "":
		switch {
		case due == 0:
			return StatusCompleted, nil
		case amountPaid > 0:
			return StatusPartial, nil
		default:
			return StatusPending, nil
		}
	case StatusCompleted:
		if due != 0 {
			return "", ErrPaymentIncomplete
		}
		return StatusCompleted, nil
	case StatusPending:
		if amountPaid > 0 {
			return "", ErrInconsistentStatus
		}
		return StatusPending, nil
	case StatusPartial:
		if due == 0 {
			return StatusCompleted, nil
		}
		if amountPaid <= 0 {
			return "", ErrInconsistentStatus
		}
		return StatusPartial, nil
	default:
		return "", ErrInconsistentStatus
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
