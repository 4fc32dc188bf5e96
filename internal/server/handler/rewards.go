package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/supafund/supafund-engine/internal/domain"
)

// RewardsHandler serves the staking reward views for the configured service.
type RewardsHandler struct {
	cache     domain.RewardsCache
	serviceID int64
	logger    *slog.Logger
}

// NewRewardsHandler creates a RewardsHandler for one staking identity.
func NewRewardsHandler(cache domain.RewardsCache, serviceID int64, logger *slog.Logger) *RewardsHandler {
	return &RewardsHandler{
		cache:     cache,
		serviceID: serviceID,
		logger:    logger,
	}
}

func (h *RewardsHandler) view(w http.ResponseWriter, r *http.Request) (domain.RewardsView, bool) {
	if h.serviceID == 0 {
		writeError(w, http.StatusNotFound, "staking rewards are not configured")
		return domain.RewardsView{}, false
	}

	view, err := h.cache.GetRewards(r.Context(), h.serviceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no rewards cycle has completed yet")
			return domain.RewardsView{}, false
		}
		h.logger.ErrorContext(r.Context(), "rewards handler: cache read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "rewards view unavailable")
		return domain.RewardsView{}, false
	}
	return view, true
}

// GetStreak returns the current consecutive-epoch reward streak.
// GET /api/rewards/streak
func (h *RewardsHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serviceId":          h.serviceID,
		"latestRewardStreak": view.Streak,
		"refreshedAt":        view.RefreshedAt,
	})
}

// GetCheckpoints returns the transformed checkpoint history, most recent
// epoch first.
// GET /api/rewards/checkpoints
func (h *RewardsHandler) GetCheckpoints(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serviceId":   h.serviceID,
		"checkpoints": view.Checkpoints,
		"refreshedAt": view.RefreshedAt,
	})
}
