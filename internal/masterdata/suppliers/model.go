package suppliers

import (
	"errors"
	"time"
)

// Supplier is a purchasing counterparty.
type Supplier struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	DeletedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// ListFilters narrows the supplier listing.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string
}

var (
	// ErrNotFound indicates the supplier id does not resolve to a live row.
	ErrNotFound = errors.New("suppliers: supplier not found")
	// ErrCodeTaken indicates the supplier code is already in use.
	ErrCodeTaken = errors.New("suppliers: code already in use")
	// ErrValidation indicates missing or malformed supplier fields.
	ErrValidation = errors.New("suppliers: invalid supplier")
)
