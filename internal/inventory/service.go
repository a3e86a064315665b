package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pawmart/pawmart/internal/catalog"
	"github.com/pawmart/pawmart/internal/platform/cache"
	"github.com/pawmart/pawmart/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Dashboard(ctx context.Context, filter DashboardFilter) ([]DashboardEntry, int, error)
	Summary(ctx context.Context, filter DashboardFilter) (DashboardSummary, error)
	MovementsByVariant(ctx context.Context, variantID int64, limit, offset int) ([]StockMovement, int, error)
	GetMovement(ctx context.Context, id int64) (StockMovement, error)
	LowStock(ctx context.Context, defaultThreshold int64, limit int) ([]LowStockItem, error)
	Expiring(ctx context.Context, within time.Duration, now time.Time, limit int) ([]ExpiringItem, error)
	LiveVariantIDs(ctx context.Context) ([]int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AlertPort receives low-stock notifications after a commit.
type AlertPort interface {
	LowStockDetected(ctx context.Context, alert LowStockAlert) error
}

// ServiceConfig groups tunables.
type ServiceConfig struct {
	DefaultLowStockThreshold int64
	ExpiryAlertWindow        time.Duration
}

// Service is the single authorised path for changing variant stock.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	alerts AlertPort
	cache  *cache.Cache
	logger *slog.Logger
	cfg    ServiceConfig
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, alerts AlertPort, projections *cache.Cache, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.DefaultLowStockThreshold <= 0 {
		cfg.DefaultLowStockThreshold = 5
	}
	if cfg.ExpiryAlertWindow <= 0 {
		cfg.ExpiryAlertWindow = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, alerts: alerts, cache: projections, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// AdjustStock validates and applies one adjustment in its own transaction.
func (s *Service) AdjustStock(ctx context.Context, input AdjustInput) (MovementResult, error) {
	if err := validateAdjust(&input); err != nil {
		return MovementResult{}, err
	}

	var result MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.Apply(ctx, tx, input)
		return err
	})
	if err != nil {
		return MovementResult{}, err
	}

	s.afterCommit(ctx, input, result)
	return result, nil
}

// Apply runs the adjustment against an open transaction. The purchase
// workflow calls this so its order write and every ledger write commit as one
// unit. Callers that hold no transaction use AdjustStock instead.
func (s *Service) Apply(ctx context.Context, tx TxRepository, input AdjustInput) (MovementResult, error) {
	if err := validateAdjust(&input); err != nil {
		return MovementResult{}, err
	}

	variant, err := tx.GetVariantForUpdate(ctx, input.VariantID)
	if err != nil {
		return MovementResult{}, err
	}
	if variant.Deleted() {
		return MovementResult{}, catalog.ErrVariantDeleted
	}

	delta := input.QuantityChange
	if !input.IsIncrease {
		delta = -delta
	}
	newQuantity := variant.StockQuantity + delta
	if newQuantity < 0 {
		return MovementResult{}, fmt.Errorf("%w: cannot reduce %q by %d, only %d available",
			ErrInsufficientStock, displaySKU(variant), input.QuantityChange, variant.StockQuantity)
	}

	now := s.now().UTC()
	expiry := variant.ExpiryDate
	if input.ExpiryDate != nil {
		expiry = input.ExpiryDate
	}
	status := catalog.DeriveStatus(variant.Status, newQuantity, expiry, now)
	if err := tx.UpdateVariantStock(ctx, variant.ID, newQuantity, status, expiry, input.ExpiryDate != nil); err != nil {
		return MovementResult{}, err
	}

	movement := StockMovement{
		VariantID:        variant.ID,
		SKU:              variant.SKU,
		PreviousQuantity: variant.StockQuantity,
		NewQuantity:      newQuantity,
		ChangeQuantity:   delta,
		IsStockIncrease:  input.IsIncrease,
		MovementType:     input.MovementType,
		Reason:           input.Reason,
		ReferenceID:      input.ReferenceID,
		PerformedBy:      input.ActorID,
		CreatedAt:        now,
	}
	movementID, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return MovementResult{}, err
	}

	return MovementResult{
		MovementID:       movementID,
		VariantID:        variant.ID,
		SKU:              variant.SKU,
		PreviousQuantity: variant.StockQuantity,
		NewQuantity:      newQuantity,
		Change:           FormatChange(delta),
		MovementType:     input.MovementType,
		ReferenceID:      input.ReferenceID,
	}, nil
}

func (s *Service) afterCommit(ctx context.Context, input AdjustInput, result MovementResult) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump projection cache", slog.Any("error", err))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:adjust",
			Entity:   "stock_movement",
			EntityID: result.ReferenceID,
			Meta: map[string]any{
				"variant_id": result.VariantID,
				"change":     result.Change,
				"type":       result.MovementType,
				"reason":     input.Reason,
			},
		})
	}
	if s.alerts != nil && !input.IsIncrease && result.NewQuantity <= s.cfg.DefaultLowStockThreshold {
		alert := LowStockAlert{
			VariantID:     result.VariantID,
			SKU:           result.SKU,
			StockQuantity: result.NewQuantity,
			Threshold:     s.cfg.DefaultLowStockThreshold,
		}
		if err := s.alerts.LowStockDetected(ctx, alert); err != nil {
			s.logger.Warn("enqueue low stock alert", slog.Any("error", err), slog.Int64("variant_id", result.VariantID))
		}
	}
}

// validateAdjust normalises and validates the input in place.
func validateAdjust(input *AdjustInput) error {
	if input.ActorID == 0 {
		return shared.ErrActorRequired
	}
	if input.VariantID <= 0 {
		return catalog.ErrVariantNotFound
	}
	if input.QuantityChange <= 0 {
		return ErrInvalidQuantity
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		return ErrReasonRequired
	}
	input.MovementType = strings.TrimSpace(input.MovementType)
	if input.MovementType == "" {
		input.MovementType = DefaultMovementType
	}
	if len(input.MovementType) > maxMovementTypeLen {
		return ErrMovementTypeInvalid
	}
	if strings.TrimSpace(input.ReferenceID) == "" {
		input.ReferenceID = NewReferenceID(time.Now())
	}
	return nil
}

// DashboardPage bundles the dashboard projection.
type DashboardPage struct {
	Entries    []DashboardEntry  `json:"entries"`
	Summary    DashboardSummary  `json:"summary"`
	Pagination shared.Pagination `json:"pagination"`
}

// Dashboard returns the movement history projection, cached per filter.
func (s *Service) Dashboard(ctx context.Context, filter DashboardFilter) (DashboardPage, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	key, err := s.cache.BuildKey(ctx, "inventory", "dashboard", dashboardKey(filter))
	if err != nil {
		return DashboardPage{}, err
	}

	var page DashboardPage
	err = s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (any, error) {
		return s.loadDashboard(ctx, filter)
	})
	return page, err
}

func (s *Service) loadDashboard(ctx context.Context, filter DashboardFilter) (DashboardPage, error) {
	var (
		entries []DashboardEntry
		total   int
		summary DashboardSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, total, err = s.repo.Dashboard(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = s.repo.Summary(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardPage{}, err
	}
	return DashboardPage{
		Entries:    entries,
		Summary:    summary,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	}, nil
}

// MovementPage bundles one variant's ledger page.
type MovementPage struct {
	Movements  []StockMovement   `json:"movements"`
	Pagination shared.Pagination `json:"pagination"`
}

// VariantMovements pages the ledger for one variant.
func (s *Service) VariantMovements(ctx context.Context, variantID int64, page, perPage int) (MovementPage, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	movements, total, err := s.repo.MovementsByVariant(ctx, variantID, perPage, (page-1)*perPage)
	if err != nil {
		return MovementPage{}, err
	}
	return MovementPage{Movements: movements, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// MovementDetail loads one ledger entry.
func (s *Service) MovementDetail(ctx context.Context, movementID int64) (StockMovement, error) {
	return s.repo.GetMovement(ctx, movementID)
}

// LowStock lists variants at or below their threshold, cached.
func (s *Service) LowStock(ctx context.Context, limit int) ([]LowStockItem, error) {
	key, err := s.cache.BuildKey(ctx, "inventory", "low-stock", fmt.Sprintf("%d", limit))
	if err != nil {
		return nil, err
	}
	var items []LowStockItem
	err = s.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (any, error) {
		return s.repo.LowStock(ctx, s.cfg.DefaultLowStockThreshold, limit)
	})
	return items, err
}

// Expiring lists variants expired or expiring within the alert window.
func (s *Service) Expiring(ctx context.Context, limit int) ([]ExpiringItem, error) {
	return s.repo.Expiring(ctx, s.cfg.ExpiryAlertWindow, s.now().UTC(), limit)
}

// ReconcileAll recomputes each variant's cached quantity from its movement
// history and fixes drift. Runs nightly from the worker; the ledger itself is
// the source of truth, so fixes touch only the cached column.
func (s *Service) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	ids, err := s.repo.LiveVariantIDs(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}

	report := ReconcileReport{}
	for _, id := range ids {
		fixed, err := s.reconcileOne(ctx, id)
		if err != nil {
			s.logger.Error("reconcile variant", slog.Int64("variant_id", id), slog.Any("error", err))
			continue
		}
		report.Checked++
		if fixed {
			report.Fixed++
		}
	}
	if report.Fixed > 0 {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump projection cache", slog.Any("error", err))
		}
	}
	return report, nil
}

func (s *Service) reconcileOne(ctx context.Context, variantID int64) (bool, error) {
	fixed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fixed = false
		variant, err := tx.GetVariantForUpdate(ctx, variantID)
		if err != nil {
			return err
		}
		expected, err := tx.SumMovements(ctx, variantID)
		if err != nil {
			return err
		}
		if expected < 0 {
			expected = 0
		}
		if expected == variant.StockQuantity {
			return nil
		}
		s.logger.Warn("stock drift detected",
			slog.Int64("variant_id", variantID),
			slog.Int64("cached", variant.StockQuantity),
			slog.Int64("ledger", expected))
		status := catalog.DeriveStatus(variant.Status, expected, variant.ExpiryDate, s.now().UTC())
		if err := tx.UpdateVariantStock(ctx, variantID, expected, status, nil, false); err != nil {
			return err
		}
		fixed = true
		return nil
	})
	return fixed, err
}

func dashboardKey(filter DashboardFilter) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d:%d",
		filter.Search, filter.MovementType,
		timeToken(filter.From), timeToken(filter.To),
		filter.Page, filter.PerPage)
}

func timeToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("20060102")
}

func displaySKU(v catalog.Variant) string {
	if v.SKU != "" {
		return v.SKU
	}
	return fmt.Sprintf("variant %d", v.ID)
}
