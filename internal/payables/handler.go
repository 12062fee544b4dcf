package payables

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/platform/httpx"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/shared"
)

// Handler exposes payable read endpoints and the note trail. Settlement is
// not exposed here: payables are settled through the purchase status flow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers payable routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/payables", h.listOutstanding)
	r.Get("/payables/{id}", h.show)
	r.Get("/payables/{id}/ledger", h.listLedger)
	r.Post("/payables/{id}/notes", h.addNote)
}

var payableStatuses = []httpx.StatusMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrValidation, Status: http.StatusUnprocessableEntity, Title: "Validation Failed"},
}

func (h *Handler) listOutstanding(w http.ResponseWriter, r *http.Request) {
	payables, err := h.service.ListOutstanding(r.Context())
	if err != nil {
		h.logger.Error("list outstanding payables", slog.Any("error", err))
		httpx.RespondError(w, err, payableStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payables": payables})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payable, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, payableStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, payable)
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		httpx.RespondError(w, err, payableStatuses...)
		return
	}
	rows, err := h.service.ListLedger(r.Context(), id)
	if err != nil {
		h.logger.Error("list payable ledger", slog.Int64("payable_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, payableStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ledger": rows})
}

type noteRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req noteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	row, err := h.service.RecordNote(r.Context(), id, req.Note, actor)
	if err != nil {
		httpx.RespondError(w, err, payableStatuses...)
		return
	}
	httpx.JSON(w, http.StatusCreated, row)
}
