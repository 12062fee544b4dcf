package costing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/platform/httpx"
)

// Handler exposes costing query endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers costing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/costing/variants/{id}/average-cost", h.averageCost)
	r.Get("/costing/cogs", h.cogs)
	r.Get("/costing/valuation", h.valuation)
}

var costingStatuses = []httpx.StatusMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrValidation, Status: http.StatusUnprocessableEntity, Title: "Validation Failed"},
}

func (h *Handler) averageCost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cost, err := h.service.WeightedAverageCost(r.Context(), id, asOf)
	if err != nil {
		h.logger.Error("average cost", slog.Int64("variant_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, costingStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, cost)
}

func (h *Handler) cogs(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if from.IsZero() || to.IsZero() {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from and to dates are required")
		return
	}
	rows, err := h.service.CostOfGoodsReceived(r.Context(), from, to.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		httpx.RespondError(w, err, costingStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	lines, err := h.service.InventoryValuation(r.Context())
	if err != nil {
		h.logger.Error("inventory valuation", slog.Any("error", err))
		httpx.RespondError(w, err, costingStatuses...)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, httpx.ErrBadRequest
	}
	return parsed, nil
}
