package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pawmart/pawmart/internal/catalog"
	"github.com/pawmart/pawmart/internal/platform/httpx"
	"github.com/pawmart/pawmart/internal/shared"
)

// LedgerService defines the service contract used by the handler.
type LedgerService interface {
	AdjustStock(ctx context.Context, input AdjustInput) (MovementResult, error)
	Dashboard(ctx context.Context, filter DashboardFilter) (DashboardPage, error)
	VariantMovements(ctx context.Context, variantID int64, page, perPage int) (MovementPage, error)
	MovementDetail(ctx context.Context, movementID int64) (StockMovement, error)
	LowStock(ctx context.Context, limit int) ([]LowStockItem, error)
	Expiring(ctx context.Context, limit int) ([]ExpiringItem, error)
}

// SnapshotPort resolves enriched variant snapshots.
type SnapshotPort interface {
	GetSnapshot(ctx context.Context, id int64) (catalog.Snapshot, error)
}

// Handler wires HTTP endpoints for the stock ledger and its projections.
type Handler struct {
	logger    *slog.Logger
	service   LedgerService
	snapshots SnapshotPort
	validate  *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service LedgerService, snapshots SnapshotPort) *Handler {
	return &Handler{logger: logger, service: service, snapshots: snapshots, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inventory", h.handleAdjust)
	r.Put("/inventory/{variantID}", h.handleAdjustVariant)
	r.Get("/inventory/dashboard", h.handleDashboard)
	r.Get("/inventory/low-stock", h.handleLowStock)
	r.Get("/inventory/expiring", h.handleExpiring)
	r.Get("/inventory/variants/{variantID}", h.handleVariantSnapshot)
	r.Get("/inventory/variants/{variantID}/movements", h.handleVariantMovements)
	r.Get("/inventory/movements/{movementID}", h.handleMovementDetail)
}

type adjustRequest struct {
	VariantID       int64  `json:"variantId" validate:"required,gt=0"`
	QuantityChange  int64  `json:"quantityChange" validate:"required,gt=0"`
	IsStockIncrease bool   `json:"isStockIncreasing"`
	MovementType    string `json:"movementType" validate:"omitempty,max=64"`
	Reason          string `json:"reason" validate:"required"`
	ReferenceID     string `json:"referenceId" validate:"omitempty,max=64"`
	ExpiryAlertDate string `json:"expiryAlertDate" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, 0)
}

func (h *Handler) handleAdjustVariant(w http.ResponseWriter, r *http.Request) {
	variantID, err := strconv.ParseInt(chi.URLParam(r, "variantID"), 10, 64)
	if err != nil || variantID <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid variant id")
		return
	}
	h.adjust(w, r, variantID)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request, pathVariantID int64) {
	actor, err := shared.RequireActor(r.Context())
	if err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if pathVariantID != 0 {
		req.VariantID = pathVariantID
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	input := AdjustInput{
		VariantID:      req.VariantID,
		QuantityChange: req.QuantityChange,
		IsIncrease:     req.IsStockIncrease,
		MovementType:   req.MovementType,
		Reason:         req.Reason,
		ReferenceID:    req.ReferenceID,
		ActorID:        actor.ID,
	}
	if req.ExpiryAlertDate != "" {
		expiry, err := time.Parse("2006-01-02", req.ExpiryAlertDate)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "invalid expiry date")
			return
		}
		input.ExpiryDate = &expiry
	}

	result, err := h.service.AdjustStock(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "adjust stock", err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := DashboardFilter{
		Search:       q.Get("search"),
		MovementType: q.Get("movementType"),
		Page:         intParam(q.Get("page"), 1),
		PerPage:      intParam(q.Get("perPage"), 20),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "invalid to date")
			return
		}
		// include the whole end day
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	page, err := h.service.Dashboard(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "load dashboard", err)
		return
	}
	httpx.OK(w, http.StatusOK, page)
}

func (h *Handler) handleVariantMovements(w http.ResponseWriter, r *http.Request) {
	variantID, err := strconv.ParseInt(chi.URLParam(r, "variantID"), 10, 64)
	if err != nil || variantID <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid variant id")
		return
	}
	q := r.URL.Query()
	page, err := h.service.VariantMovements(r.Context(), variantID, intParam(q.Get("page"), 1), intParam(q.Get("perPage"), 20))
	if err != nil {
		h.respondError(w, r, "list variant movements", err)
		return
	}
	httpx.OK(w, http.StatusOK, page)
}

func (h *Handler) handleVariantSnapshot(w http.ResponseWriter, r *http.Request) {
	variantID, err := strconv.ParseInt(chi.URLParam(r, "variantID"), 10, 64)
	if err != nil || variantID <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid variant id")
		return
	}
	snapshot, err := h.snapshots.GetSnapshot(r.Context(), variantID)
	if err != nil {
		h.respondError(w, r, "load variant snapshot", err)
		return
	}
	httpx.OK(w, http.StatusOK, snapshotResponse(snapshot))
}

func (h *Handler) handleMovementDetail(w http.ResponseWriter, r *http.Request) {
	movementID, err := strconv.ParseInt(chi.URLParam(r, "movementID"), 10, 64)
	if err != nil || movementID <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid movement id")
		return
	}
	movement, err := h.service.MovementDetail(r.Context(), movementID)
	if err != nil {
		h.respondError(w, r, "load movement", err)
		return
	}
	httpx.OK(w, http.StatusOK, movement)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStock(r.Context(), intParam(r.URL.Query().Get("limit"), 100))
	if err != nil {
		h.respondError(w, r, "list low stock", err)
		return
	}
	httpx.OK(w, http.StatusOK, items)
}

func (h *Handler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Expiring(r.Context(), intParam(r.URL.Query().Get("limit"), 100))
	if err != nil {
		h.respondError(w, r, "list expiring", err)
		return
	}
	httpx.OK(w, http.StatusOK, items)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, catalog.ErrVariantNotFound), errors.Is(err, ErrMovementNotFound):
		httpx.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrVariantDeleted),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrMovementTypeInvalid),
		errors.Is(err, ErrInsufficientStock):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrActorRequired):
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
	default:
		h.logger.Error(action, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Fail(w, http.StatusInternalServerError, "internal server error")
	}
}

// variantView shapes the snapshot payload.
type variantView struct {
	VariantID     int64      `json:"variantId"`
	SKU           string     `json:"sku"`
	ProductName   string     `json:"productName"`
	BrandName     string     `json:"brandName"`
	CategoryName  string     `json:"categoryName"`
	UnitName      string     `json:"unitName"`
	Attribute     string     `json:"attribute"`
	Value         string     `json:"value"`
	Price         float64    `json:"price"`
	DiscountPrice float64    `json:"discountPrice"`
	PurchasePrice float64    `json:"purchasePrice"`
	StockQuantity int64      `json:"stockQuantity"`
	Reserved      int64      `json:"reservedQuantity"`
	Status        string     `json:"status"`
	ExpiryDate    *time.Time `json:"expiryDate,omitempty"`
}

func snapshotResponse(s catalog.Snapshot) variantView {
	return variantView{
		VariantID:     s.ID,
		SKU:           s.SKU,
		ProductName:   s.ProductName,
		BrandName:     s.BrandName,
		CategoryName:  s.CategoryName,
		UnitName:      s.UnitName,
		Attribute:     s.Attribute,
		Value:         s.Value,
		Price:         s.Price,
		DiscountPrice: s.DiscountPrice,
		PurchasePrice: s.PurchasePrice,
		StockQuantity: s.StockQuantity,
		Reserved:      s.ReservedQuantity,
		Status:        string(s.Status),
		ExpiryDate:    s.ExpiryDate,
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid field: " + verrs[0].Field()
	}
	return "invalid request"
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
