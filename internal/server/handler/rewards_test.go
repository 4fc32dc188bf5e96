package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supafund/supafund-engine/internal/domain"
)

type fakeRewardsCache struct {
	view domain.RewardsView
	err  error
}

func (f *fakeRewardsCache) SetRewards(_ context.Context, _ int64, view domain.RewardsView) error {
	f.view = view
	return nil
}

func (f *fakeRewardsCache) GetRewards(_ context.Context, _ int64) (domain.RewardsView, error) {
	if f.err != nil {
		return domain.RewardsView{}, f.err
	}
	return f.view, nil
}

func TestGetStreakServesCachedView(t *testing.T) {
	cache := &fakeRewardsCache{
		view: domain.RewardsView{
			CycleID:     "cycle-9",
			Streak:      3,
			RefreshedAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		},
	}
	h := NewRewardsHandler(cache, 7, slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodGet, "/api/rewards/streak", nil)
	rec := httptest.NewRecorder()
	h.GetStreak(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		ServiceID          int64 `json:"serviceId"`
		LatestRewardStreak int   `json:"latestRewardStreak"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.EqualValues(t, 7, got.ServiceID)
	require.Equal(t, 3, got.LatestRewardStreak)
}

func TestGetStreakUnconfiguredReturns404(t *testing.T) {
	h := NewRewardsHandler(&fakeRewardsCache{}, 0, slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodGet, "/api/rewards/streak", nil)
	rec := httptest.NewRecorder()
	h.GetStreak(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "not configured")
}

func TestGetCheckpointsBeforeFirstCycleReturns404(t *testing.T) {
	h := NewRewardsHandler(&fakeRewardsCache{err: domain.ErrNotFound}, 7, slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodGet, "/api/rewards/checkpoints", nil)
	rec := httptest.NewRecorder()
	h.GetCheckpoints(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCheckpointsServesTransformedHistory(t *testing.T) {
	cache := &fakeRewardsCache{
		view: domain.RewardsView{
			Checkpoints: []domain.Checkpoint{
				{Epoch: 2, ContractAddress: "0xstake", Earned: true, Reward: 2},
				{Epoch: 1, ContractAddress: "0xstake", Earned: false},
			},
		},
	}
	h := NewRewardsHandler(cache, 7, slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodGet, "/api/rewards/checkpoints", nil)
	rec := httptest.NewRecorder()
	h.GetCheckpoints(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Checkpoints []domain.Checkpoint `json:"checkpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Checkpoints, 2)
	require.EqualValues(t, 2, got.Checkpoints[0].Epoch)
}
