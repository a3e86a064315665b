package suppliers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pawmart/pawmart/internal/platform/httpx"
	"github.com/pawmart/pawmart/internal/shared"
)

// Handler wires HTTP endpoints for supplier master data.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the supplier handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers supplier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/suppliers", h.handleList)
	r.Post("/suppliers", h.handleCreate)
	r.Get("/suppliers/{supplierID}", h.handleGet)
	r.Put("/suppliers/{supplierID}", h.handleUpdate)
	r.Delete("/suppliers/{supplierID}", h.handleDelete)
}

type supplierRequest struct {
	Code    string `json:"code" validate:"required,max=32"`
	Name    string `json:"name" validate:"required,max=255"`
	Address string `json:"address" validate:"omitempty,max=500"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}

	result, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, r, "list suppliers", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"suppliers": result, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := supplierID(w, r)
	if !ok {
		return
	}
	supplier, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "load supplier", err)
		return
	}
	httpx.OK(w, http.StatusOK, supplier)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if _, err := shared.RequireActor(r.Context()); err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "create supplier", err)
		return
	}
	httpx.OK(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if _, err := shared.RequireActor(r.Context()); err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, ok := supplierID(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, "update supplier", err)
		return
	}
	httpx.OK(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := shared.RequireActor(r.Context()); err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, ok := supplierID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, "delete supplier", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Supplier, bool) {
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return Supplier{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpx.Fail(w, http.StatusBadRequest, "invalid field: "+verrs[0].Field())
		} else {
			httpx.Fail(w, http.StatusBadRequest, "invalid request")
		}
		return Supplier{}, false
	}
	return Supplier{Code: req.Code, Name: req.Name, Address: req.Address, Email: req.Email, Phone: req.Phone}, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCodeTaken), errors.Is(err, ErrValidation):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(action, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Fail(w, http.StatusInternalServerError, "internal server error")
	}
}

func supplierID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "supplierID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid supplier id")
		return 0, false
	}
	return id, true
}
