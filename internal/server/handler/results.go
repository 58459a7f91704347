package handler

import (
	"log/slog"
	"net/http"

	"github.com/gridsim/marketsim/internal/domain"
)

// ResultsHandler serves persisted clearing records. It is only registered
// when a result store is configured.
type ResultsHandler struct {
	store  domain.MarketResultStore
	logger *slog.Logger
}

// NewResultsHandler creates a ResultsHandler over the given store.
func NewResultsHandler(store domain.MarketResultStore, logger *slog.Logger) *ResultsHandler {
	return &ResultsHandler{
		store:  store,
		logger: logger,
	}
}

// ListResults returns the most recent clearing records for one market.
// GET /api/markets/{name}/results?limit=100
func (h *ResultsHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing market name")
		return
	}

	records, err := h.store.ListByMarket(r.Context(), name, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list results failed",
			slog.String("market", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market":  name,
		"records": records,
	})
}
