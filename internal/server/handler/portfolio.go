package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/supafund/supafund-engine/internal/domain"
)

// PortfolioHandler serves the portfolio views for the tracked wallet. All
// endpoints read the last-good cached view; a 404 means no refresh cycle has
// completed yet.
type PortfolioHandler struct {
	cache  domain.PortfolioCache
	store  domain.SnapshotStore
	wallet string
	logger *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler for one wallet.
func NewPortfolioHandler(cache domain.PortfolioCache, store domain.SnapshotStore, wallet string, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		cache:  cache,
		store:  store,
		wallet: wallet,
		logger: logger,
	}
}

func (h *PortfolioHandler) view(w http.ResponseWriter, r *http.Request) (domain.PortfolioView, bool) {
	view, err := h.cache.GetPortfolio(r.Context(), h.wallet)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no refresh cycle has completed yet")
			return domain.PortfolioView{}, false
		}
		h.logger.ErrorContext(r.Context(), "portfolio handler: cache read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "portfolio view unavailable")
		return domain.PortfolioView{}, false
	}
	return view, true
}

// GetView returns the complete cached portfolio view.
// GET /api/portfolio
func (h *PortfolioHandler) GetView(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetMetrics returns the portfolio-level scalar rollup.
// GET /api/portfolio/metrics
func (h *PortfolioHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view.Metrics)
}

// GetPositions returns the processed position list.
// GET /api/portfolio/positions
func (h *PortfolioHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions":   view.Positions,
		"refreshedAt": view.RefreshedAt,
	})
}

// GetActivity returns the recent activity feed.
// GET /api/portfolio/activity
func (h *PortfolioHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activities":  view.Activities,
		"refreshedAt": view.RefreshedAt,
	})
}

// GetOpportunities returns the ranked open-market opportunities.
// GET /api/opportunities
func (h *PortfolioHandler) GetOpportunities(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": view.Opportunities,
		"refreshedAt":   view.RefreshedAt,
	})
}

// historyPoint is one charted snapshot row.
type historyPoint struct {
	TotalProfitLoss float64   `json:"totalProfitLoss"`
	ActivePositions int       `json:"activePositions"`
	WinRate         float64   `json:"winRate"`
	RewardStreak    int       `json:"rewardStreak"`
	TakenAt         time.Time `json:"takenAt"`
}

// GetHistory returns snapshot history for charting, oldest first.
// GET /api/portfolio/history?since=<rfc3339|unix>&limit=<n>
func (h *PortfolioHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	opts := parseHistoryOpts(r, time.Now().UTC())

	snapshots, err := h.store.ListSince(r.Context(), h.wallet, opts.Since, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "portfolio handler: history read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "snapshot history unavailable")
		return
	}

	points := make([]historyPoint, 0, len(snapshots))
	for _, snap := range snapshots {
		points = append(points, historyPoint{
			TotalProfitLoss: snap.Metrics.TotalProfitLoss,
			ActivePositions: snap.Metrics.ActivePositions,
			WinRate:         snap.Metrics.WinRate,
			RewardStreak:    snap.RewardStreak,
			TakenAt:         snap.TakenAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":  h.wallet,
		"since":   opts.Since,
		"history": points,
	})
}
