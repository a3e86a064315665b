package suppliers

import (
	"context"
	"fmt"
	"strings"
)

// Service applies supplier business rules over the repository.
type Service struct {
	repo Repository
}

// NewService constructs the supplier service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 {
		filters.Limit = 20
	}
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	if err := s.validate(&supplier); err != nil {
		return Supplier{}, err
	}
	return s.repo.Create(ctx, supplier)
}

func (s *Service) Update(ctx context.Context, id int64, supplier Supplier) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, ErrNotFound
	}
	if err := s.validate(&supplier); err != nil {
		return Supplier{}, err
	}
	if err := s.repo.Update(ctx, id, supplier); err != nil {
		return Supplier{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

// SupplierExists resolves a supplier reference for the purchase workflow.
func (s *Service) SupplierExists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return s.repo.SupplierExists(ctx, id)
}

func (s *Service) validate(sup *Supplier) error {
	sup.Code = strings.TrimSpace(sup.Code)
	sup.Name = strings.TrimSpace(sup.Name)
	if sup.Code == "" {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}
	if sup.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}
