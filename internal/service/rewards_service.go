package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supafund/supafund-engine/internal/domain"
	"github.com/supafund/supafund-engine/internal/engine"
)

// CheckpointSource fetches raw epoch checkpoints from the rewards indexer.
type CheckpointSource interface {
	FetchCheckpoints(ctx context.Context, contracts []string) ([]domain.RawCheckpoint, error)
}

// RewardsConfig holds the streak refresh parameters for one staked service.
type RewardsConfig struct {
	ServiceID int64
	// Contracts is the set of staking contracts whose checkpoints matter.
	Contracts []string
	// SelfContracts lists contracts whose empty-participant checkpoints are
	// attributed to the service itself.
	SelfContracts []string
	PollInterval  time.Duration
}

// RewardsService runs the reward streak refresh loop.
type RewardsService struct {
	cfg         RewardsConfig
	checkpoints CheckpointSource
	cache       domain.RewardsCache
	bus         domain.SignalBus
	logger      *slog.Logger

	selfContracts map[string]bool
}

// NewRewardsService creates a RewardsService.
func NewRewardsService(
	cfg RewardsConfig,
	checkpoints CheckpointSource,
	cache domain.RewardsCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *RewardsService {
	self := make(map[string]bool, len(cfg.SelfContracts))
	for _, c := range cfg.SelfContracts {
		self[strings.ToLower(c)] = true
	}
	return &RewardsService{
		cfg:           cfg,
		checkpoints:   checkpoints,
		cache:         cache,
		bus:           bus,
		logger:        logger,
		selfContracts: self,
	}
}

// RunCycle executes one rewards refresh: fetch checkpoints, transform them
// for the configured service, compute the streak, and distribute the view.
func (s *RewardsService) RunCycle(ctx context.Context, now time.Time) (domain.RewardsView, error) {
	raws, err := s.checkpoints.FetchCheckpoints(ctx, s.cfg.Contracts)
	if err != nil {
		return domain.RewardsView{}, fmt.Errorf("rewards_service: fetch checkpoints: %w", err)
	}

	transformed := engine.TransformCheckpoints(s.cfg.ServiceID, raws, s.selfContracts)

	view := domain.RewardsView{
		CycleID:     uuid.NewString(),
		Streak:      engine.LatestStreak(transformed, now),
		Checkpoints: transformed,
		RefreshedAt: now,
	}

	if err := s.cache.SetRewards(ctx, s.cfg.ServiceID, view); err != nil {
		return domain.RewardsView{}, fmt.Errorf("rewards_service: cache view: %w", err)
	}

	payload, _ := json.Marshal(view)
	if err := s.bus.Publish(ctx, ChannelRewards, payload); err != nil {
		s.logger.WarnContext(ctx, "rewards_service: publish failed",
			slog.String("cycle_id", view.CycleID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "rewards_service: cycle complete",
		slog.String("cycle_id", view.CycleID),
		slog.Int("checkpoints", len(transformed)),
		slog.Int("streak", view.Streak),
	)

	return view, nil
}

// Run executes rewards cycles until the context is cancelled.
func (s *RewardsService) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.RunCycle(ctx, time.Now().UTC()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.ErrorContext(ctx, "rewards_service: cycle failed",
				slog.String("error", err.Error()),
			)
		}
		timer.Reset(s.cfg.PollInterval)
	}
}
