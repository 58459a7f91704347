package handler

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gridsim/marketsim/internal/domain"
)

// MarketStatus is the read-only view of a running market role required by the
// status endpoints. It is declared locally so the handler package does not
// depend on the market actor implementation.
type MarketStatus interface {
	Name() string
	StateName() string
	RegisteredAgents() []domain.AgentID
	LatestResult() *domain.MarketResult
}

// MarketHandler serves market status endpoints.
type MarketHandler struct {
	markets map[string]MarketStatus
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler over the given roles.
func NewMarketHandler(markets map[string]MarketStatus, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketSummary is the list-endpoint row for one market.
type marketSummary struct {
	Name        string     `json:"name"`
	State       string     `json:"state"`
	Registered  int        `json:"registered"`
	LastCleared *time.Time `json:"last_cleared,omitempty"`
}

// ListMarkets returns a summary of every configured market.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	summaries := make([]marketSummary, 0, len(h.markets))
	for _, m := range h.markets {
		s := marketSummary{
			Name:       m.Name(),
			State:      m.StateName(),
			Registered: len(m.RegisteredAgents()),
		}
		if res := m.LatestResult(); res != nil {
			t := res.ClearedAt
			s.LastCleared = &t
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{"markets": summaries})
}

// marketDetail is the single-market endpoint payload.
type marketDetail struct {
	Name       string               `json:"name"`
	State      string               `json:"state"`
	Registered []string             `json:"registered"`
	Latest     *domain.MarketResult `json:"latest,omitempty"`
}

// GetMarket returns one market's state, participants and latest result.
// GET /api/markets/{name}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	m, ok := h.markets[name]
	if !ok {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}

	agents := m.RegisteredAgents()
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.String()
	}

	writeJSON(w, http.StatusOK, marketDetail{
		Name:       m.Name(),
		State:      m.StateName(),
		Registered: names,
		Latest:     m.LatestResult(),
	})
}
