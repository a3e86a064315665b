package catalog

import (
	"errors"
	"time"
)

// Status enumerates variant lifecycle states.
type Status string

const (
	// StatusActive marks a variant as sellable and stockable.
	StatusActive Status = "active"
	// StatusInactive marks a variant switched off automatically (expired or
	// out of stock). It flips back to active when the cause clears.
	StatusInactive Status = "inactive"
	// StatusDiscontinued marks a variant manually retired. Stock or expiry
	// changes never reactivate it.
	StatusDiscontinued Status = "discontinued"
)

// Variant is a sellable/stockable configuration of a product.
type Variant struct {
	ID                int64
	ProductID         int64
	SKU               string
	Attribute         string
	Value             string
	UnitID            int64
	PurchasePrice     float64
	Price             float64
	DiscountPrice     float64
	StockQuantity     int64
	ReservedQuantity  int64
	ExpiryDate        *time.Time
	Status            Status
	LowStockThreshold int64
	DeletedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Deleted reports whether the variant has been soft-deleted.
func (v Variant) Deleted() bool {
	return v.DeletedAt != nil
}

// Snapshot is a variant enriched with display context for read endpoints.
// Missing joins render as "Unknown" rather than failing the response.
type Snapshot struct {
	Variant
	ProductName  string
	BrandName    string
	CategoryName string
	UnitName     string
}

var (
	// ErrVariantNotFound indicates the variant id does not resolve.
	ErrVariantNotFound = errors.New("catalog: variant not found")
	// ErrVariantDeleted indicates the variant was soft-deleted.
	ErrVariantDeleted = errors.New("catalog: variant deleted")
)

// DeriveStatus recomputes the variant status after a stock or expiry change.
// Expired or zero-stock variants become inactive. A variant returns to active
// only when it was automatically inactive; discontinued stays discontinued.
func DeriveStatus(current Status, stockQuantity int64, expiry *time.Time, now time.Time) Status {
	if current == StatusDiscontinued {
		return StatusDiscontinued
	}
	expired := expiry != nil && expiry.Before(now)
	if expired || stockQuantity == 0 {
		return StatusInactive
	}
	return StatusActive
}
