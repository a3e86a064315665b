package inventory

import (
	"errors"
	"time"
)

// DefaultMovementType is applied when the caller supplies no label.
const DefaultMovementType = "Manual Adjustment"

// Well-known movement labels. The ledger accepts any non-empty label; these
// exist for callers, not for branching logic.
const (
	MovementTypePurchase  = "Purchase/Received"
	MovementTypeCancelled = "Purchase Cancelled"
	MovementTypeSale      = "Sale"
	MovementTypeDamage    = "Damage"
)

const maxMovementTypeLen = 64

// StockMovement is one immutable ledger entry. Rows are never edited or
// deleted; corrections are opposite-signed entries.
type StockMovement struct {
	ID               int64     `json:"id"`
	VariantID        int64     `json:"variantId"`
	SKU              string    `json:"sku"`
	PreviousQuantity int64     `json:"previousQuantity"`
	NewQuantity      int64     `json:"newQuantity"`
	ChangeQuantity   int64     `json:"changeQuantity"`
	IsStockIncrease  bool      `json:"isStockIncreasing"`
	MovementType     string    `json:"movementType"`
	Reason           string    `json:"reason"`
	ReferenceID      string    `json:"referenceId"`
	PerformedBy      int64     `json:"performedBy"`
	CreatedAt        time.Time `json:"createdAt"`
}

// AdjustInput describes one stock adjustment request.
type AdjustInput struct {
	VariantID      int64
	QuantityChange int64
	IsIncrease     bool
	MovementType   string
	Reason         string
	ReferenceID    string
	ActorID        int64
	ExpiryDate     *time.Time
}

// MovementResult confirms an applied adjustment.
type MovementResult struct {
	MovementID       int64  `json:"movementId"`
	VariantID        int64  `json:"variantId"`
	SKU              string `json:"sku"`
	PreviousQuantity int64  `json:"previousQuantity"`
	NewQuantity      int64  `json:"newQuantity"`
	Change           string `json:"change"`
	MovementType     string `json:"movementType"`
	ReferenceID      string `json:"referenceId"`
}

// DashboardFilter narrows the movement history projection.
type DashboardFilter struct {
	Search       string
	MovementType string
	From         time.Time
	To           time.Time
	Page         int
	PerPage      int
}

// DashboardEntry is a movement joined with catalog display context.
type DashboardEntry struct {
	StockMovement
	ProductName string `json:"productName"`
	BrandName   string `json:"brandName"`
	Attribute   string `json:"attribute"`
	Value       string `json:"value"`
}

// DashboardSummary aggregates the filtered movement set.
type DashboardSummary struct {
	TotalMovements int64 `json:"totalMovements"`
	TotalIn        int64 `json:"totalIn"`
	TotalOut       int64 `json:"totalOut"`
}

// LowStockItem flags a variant at or below its threshold.
type LowStockItem struct {
	VariantID     int64  `json:"variantId"`
	SKU           string `json:"sku"`
	ProductName   string `json:"productName"`
	Attribute     string `json:"attribute"`
	Value         string `json:"value"`
	StockQuantity int64  `json:"stockQuantity"`
	Threshold     int64  `json:"threshold"`
}

// ExpiringItem flags a variant expired or expiring within the alert window.
type ExpiringItem struct {
	VariantID     int64     `json:"variantId"`
	SKU           string    `json:"sku"`
	ProductName   string    `json:"productName"`
	StockQuantity int64     `json:"stockQuantity"`
	ExpiryDate    time.Time `json:"expiryDate"`
	Expired       bool      `json:"expired"`
}

// LowStockAlert is handed to the alert queue after a commit drops a variant
// to or below its threshold.
type LowStockAlert struct {
	VariantID     int64  `json:"variantId"`
	SKU           string `json:"sku"`
	StockQuantity int64  `json:"stockQuantity"`
	Threshold     int64  `json:"threshold"`
}

// ReconcileReport summarises one reconciliation sweep.
type ReconcileReport struct {
	Checked int
	Fixed   int
}

var (
	// ErrInvalidQuantity indicates a zero or negative quantity magnitude.
	ErrInvalidQuantity = errors.New("inventory: quantity change must be a positive amount")
	// ErrReasonRequired indicates a missing adjustment reason.
	ErrReasonRequired = errors.New("inventory: reason is required")
	// ErrMovementTypeInvalid indicates an empty or oversized movement label.
	ErrMovementTypeInvalid = errors.New("inventory: movement type must be 1-64 characters")
	// ErrInsufficientStock triggered when a decrease would drive stock negative.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrMovementNotFound indicates the movement id does not resolve.
	ErrMovementNotFound = errors.New("inventory: movement not found")
)
