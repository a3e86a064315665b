package purchasing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pawmart/pawmart/internal/inventory"
	"github.com/pawmart/pawmart/internal/platform/httpx"
	"github.com/pawmart/pawmart/internal/shared"
)

// PurchaseService defines the service contract used by the handler.
type PurchaseService interface {
	Create(ctx context.Context, input CreateInput) (Purchase, error)
	Update(ctx context.Context, id int64, input UpdateInput) (Purchase, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (Purchase, error)
	List(ctx context.Context, filter ListFilter) (Page, error)
}

// Handler wires HTTP endpoints for the purchase workflow.
type Handler struct {
	logger   *slog.Logger
	service  PurchaseService
	validate *validator.Validate
}

// NewHandler constructs the purchasing handler.
func NewHandler(logger *slog.Logger, service PurchaseService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchases", h.handleCreate)
	r.Get("/purchases", h.handleList)
	r.Get("/purchases/{purchaseID}", h.handleGet)
	r.Put("/purchases/{purchaseID}", h.handleUpdate)
	r.Delete("/purchases/{purchaseID}", h.handleDelete)
}

type lineRequest struct {
	VariantID  int64   `json:"variantId" validate:"required,gt=0"`
	Quantity   int64   `json:"quantity" validate:"required,gte=1"`
	UnitPrice  float64 `json:"unitPrice" validate:"gte=0"`
	TaxPercent float64 `json:"taxPercent" validate:"gte=0,lte=100"`
}

type createRequest struct {
	SupplierID   int64         `json:"supplierId" validate:"required,gt=0"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
	OtherCharges float64       `json:"otherCharges" validate:"gte=0"`
	Discount     float64       `json:"discount" validate:"gte=0"`
	AmountPaid   float64       `json:"amountPaid" validate:"gte=0"`
	PaymentType  string        `json:"paymentType" validate:"omitempty,max=32"`
	Status       string        `json:"status" validate:"omitempty,oneof=pending partial completed"`
	Notes        string        `json:"notes" validate:"omitempty,max=2000"`
}

// updateRequest allows an empty line set only for the cancellation branch.
type updateRequest struct {
	SupplierID   int64         `json:"supplierId" validate:"omitempty,gt=0"`
	Lines        []lineRequest `json:"lines" validate:"omitempty,dive"`
	OtherCharges float64       `json:"otherCharges" validate:"gte=0"`
	Discount     float64       `json:"discount" validate:"gte=0"`
	AmountPaid   float64       `json:"amountPaid" validate:"gte=0"`
	PaymentType  string        `json:"paymentType" validate:"omitempty,max=32"`
	Status       string        `json:"status" validate:"omitempty,oneof=pending partial completed cancelled"`
	Notes        string        `json:"notes" validate:"omitempty,max=2000"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.RequireActor(r.Context())
	if err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	created, err := h.service.Create(r.Context(), CreateInput{
		SupplierID:   req.SupplierID,
		Lines:        toLineInputs(req.Lines),
		OtherCharges: req.OtherCharges,
		Discount:     req.Discount,
		AmountPaid:   req.AmountPaid,
		PaymentType:  req.PaymentType,
		Status:       Status(req.Status),
		Notes:        req.Notes,
		ActorID:      actor.ID,
	})
	if err != nil {
		h.respondError(w, r, "create purchase", err)
		return
	}
	httpx.OK(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.RequireActor(r.Context())
	if err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, ok := purchaseID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	updated, err := h.service.Update(r.Context(), id, UpdateInput{
		SupplierID:   req.SupplierID,
		Lines:        toLineInputs(req.Lines),
		OtherCharges: req.OtherCharges,
		Discount:     req.Discount,
		AmountPaid:   req.AmountPaid,
		PaymentType:  req.PaymentType,
		Status:       Status(req.Status),
		Notes:        req.Notes,
		ActorID:      actor.ID,
	})
	if err != nil {
		h.respondError(w, r, "update purchase", err)
		return
	}
	httpx.OK(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := purchaseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, "delete purchase", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := purchaseID(w, r)
	if !ok {
		return
	}
	purchase, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "load purchase", err)
		return
	}
	httpx.OK(w, http.StatusOK, purchase)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	supplierID, _ := strconv.ParseInt(q.Get("supplierId"), 10, 64)
	filter := ListFilter{
		Status:     Status(q.Get("status")),
		SupplierID: supplierID,
		Search:     q.Get("search"),
		Page:       intParam(q.Get("page"), 1),
		PerPage:    intParam(q.Get("perPage"), 20),
	}
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list purchases", err)
		return
	}
	httpx.OK(w, http.StatusOK, page)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, ErrPurchaseNotFound), errors.Is(err, ErrSupplierNotFound):
		httpx.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrVariantUnavailable),
		errors.Is(err, ErrNoLines),
		errors.Is(err, ErrInvalidLine),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrPaymentIncomplete),
		errors.Is(err, ErrInconsistentStatus),
		errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrOrderLocked), errors.Is(err, ErrAdminOnly):
		httpx.Fail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, shared.ErrActorRequired):
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
	default:
		h.logger.Error(action, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Fail(w, http.StatusInternalServerError, "internal server error")
	}
}

func purchaseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "purchaseID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid purchase id")
		return 0, false
	}
	return id, true
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			VariantID:  line.VariantID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TaxPercent: line.TaxPercent,
		})
	}
	return out
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
