package purchases

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/payables"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/platform/httpx"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/shared"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/status"
)

// Handler exposes the procurement endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	idempotency *shared.IdempotencyStore
}

// NewHandler builds Handler instance. idempotency may be nil, which disables
// Idempotency-Key handling on the transition endpoint.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, idempotency: idempotency}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchases", h.list)
	r.Post("/purchases", h.create)
	r.Get("/purchases/{id}", h.show)
	r.Put("/purchases/{id}/items", h.updateItems)
	r.Post("/purchases/{id}/damage", h.reportDamage)
	r.Post("/purchases/{id}/transition", h.transition)
	r.Delete("/purchases/{id}", h.remove)
}

var purchaseStatuses = []httpx.StatusMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrValidation, Status: http.StatusUnprocessableEntity, Title: "Validation Failed"},
	{Err: ErrImmutable, Status: http.StatusConflict, Title: "Purchase Locked"},
	{Err: ErrProtected, Status: http.StatusConflict, Title: "Purchase Protected"},
	{Err: payables.ErrAlreadySettled, Status: http.StatusConflict, Title: "Already Settled"},
	{Err: payables.ErrAmountMismatch, Status: http.StatusUnprocessableEntity, Title: "Amount Mismatch"},
	{Err: status.ErrInvalidStatus, Status: http.StatusUnprocessableEntity, Title: "Invalid Status"},
	{Err: status.ErrIllegalTransition, Status: http.StatusConflict, Title: "Illegal Transition"},
	{Err: status.ErrUnauthorizedTransition, Status: http.StatusForbidden, Title: "Forbidden"},
	{Err: shared.ErrIdempotencyConflict, Status: http.StatusConflict, Title: "Duplicate Request"},
}

type lineRequest struct {
	VariantID int64   `json:"variant_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
}

type createRequest struct {
	SupplierID          int64         `json:"supplier_id" validate:"required,gt=0"`
	SupplierReferenceNo string        `json:"supplier_reference_no" validate:"max=100"`
	Notes               string        `json:"notes" validate:"max=2000"`
	Items               []lineRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchase, err := h.service.Create(r.Context(), CreateInput{
		SupplierID:          req.SupplierID,
		SupplierReferenceNo: req.SupplierReferenceNo,
		Notes:               req.Notes,
		Items:               toLineInputs(req.Items),
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create purchase", slog.Any("error", err))
		httpx.RespondError(w, err, purchaseStatuses...)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	perPage := queryInt(r, "per_page", 20)
	if perPage > 200 {
		perPage = 200
	}
	purchases, meta, err := h.service.List(r.Context(), queryInt(r, "page", 1), perPage)
	if err != nil {
		h.logger.Error("list purchases", slog.Any("error", err))
		httpx.RespondError(w, err, purchaseStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchases": purchases, "meta": meta})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchase, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, purchaseStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

type updateItemsRequest struct {
	Items []lineRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchase, err := h.service.UpdateLines(r.Context(), id, toLineInputs(req.Items), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err, purchaseStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

type damageRequest struct {
	Deduction float64 `json:"deduction" validate:"gte=0"`
	Category  string  `json:"category" validate:"max=100"`
	Reason    string  `json:"reason" validate:"max=2000"`
}

func (h *Handler) reportDamage(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req damageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchase, err := h.service.ReportDamage(r.Context(), id, DamageInput{
		Deduction: req.Deduction,
		Category:  req.Category,
		Reason:    req.Reason,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err, purchaseStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

type transitionRequest struct {
	Target        string            `json:"target" validate:"required,max=50"`
	Receipts      map[int64]float64 `json:"receipts"`
	PaymentMethod string            `json:"payment_method" validate:"max=50"`
	BankRef       string            `json:"bank_ref" validate:"max=100"`
	PaidAmount    float64           `json:"paid_amount" validate:"gte=0"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var idempotencyKey string
	if raw := r.Header.Get("Idempotency-Key"); raw != "" && h.idempotency != nil {
		idempotencyKey = shared.DeriveIdempotencyKey("purchases", strconv.FormatInt(id, 10), raw)
		if err := h.idempotency.CheckAndInsert(r.Context(), idempotencyKey, "purchases"); err != nil {
			httpx.RespondError(w, err, purchaseStatuses...)
			return
		}
	}
	purchase, err := h.service.Transition(r.Context(), id, TransitionInput{
		Target:   req.Target,
		Receipts: req.Receipts,
		Payment: payables.PaymentInput{
			Method:  req.PaymentMethod,
			BankRef: req.BankRef,
			Amount:  req.PaidAmount,
		},
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		if idempotencyKey != "" {
			// Release the key so the client can retry the same request.
			if delErr := h.idempotency.Delete(r.Context(), idempotencyKey); delErr != nil {
				h.logger.Error("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.logger.Warn("purchase transition rejected",
			slog.Int64("purchase_id", id),
			slog.String("target", req.Target),
			slog.Any("error", err))
		httpx.RespondError(w, err, purchaseStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err, purchaseStatuses...)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{VariantID: line.VariantID, Qty: line.Qty, UnitCost: line.UnitCost})
	}
	return out
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
