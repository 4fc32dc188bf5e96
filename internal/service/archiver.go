package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/supafund/supafund-engine/internal/domain"
)

// archiveInterval is how often the retention sweep runs.
const archiveInterval = 24 * time.Hour

// Archiver pages cold snapshot history out of Postgres into object storage.
// Rows older than the retention window are written to one JSON object per
// wallet and then deleted.
type Archiver struct {
	store     domain.SnapshotStore
	blob      domain.BlobWriter
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. retention must be positive.
func NewArchiver(store domain.SnapshotStore, blob domain.BlobWriter, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:     store,
		blob:      blob,
		retention: retention,
		logger:    logger,
	}
}

// archivedSnapshot is the JSON shape written to the archive objects.
type archivedSnapshot struct {
	ID           string                  `json:"id"`
	Wallet       string                  `json:"wallet"`
	Metrics      domain.ProcessedMetrics `json:"metrics"`
	Positions    int                     `json:"positions"`
	RewardStreak int                     `json:"rewardStreak"`
	TakenAt      time.Time               `json:"takenAt"`
}

// RunOnce performs one retention sweep anchored at now. Rows are only
// deleted after every wallet's archive object uploaded successfully.
func (a *Archiver) RunOnce(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-a.retention)

	snapshots, err := a.store.ListBefore(ctx, cutoff, 0)
	if err != nil {
		return fmt.Errorf("archiver: list expired snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return nil
	}

	byWallet := make(map[string][]archivedSnapshot)
	for _, snap := range snapshots {
		byWallet[snap.Wallet] = append(byWallet[snap.Wallet], archivedSnapshot{
			ID:           snap.ID,
			Wallet:       snap.Wallet,
			Metrics:      snap.Metrics,
			Positions:    snap.Positions,
			RewardStreak: snap.RewardStreak,
			TakenAt:      snap.TakenAt,
		})
	}

	stamp := now.UTC().Format("2006-01-02")
	for wallet, rows := range byWallet {
		payload, err := json.Marshal(rows)
		if err != nil {
			return fmt.Errorf("archiver: marshal archive for %s: %w", wallet, err)
		}

		path := fmt.Sprintf("snapshots/%s/%s.json", wallet, stamp)
		if err := a.blob.Put(ctx, path, payload, "application/json"); err != nil {
			return fmt.Errorf("archiver: upload %s: %w", path, err)
		}

		a.logger.InfoContext(ctx, "archiver: archive written",
			slog.String("path", path),
			slog.Int("rows", len(rows)),
		)
	}

	deleted, err := a.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiver: delete expired snapshots: %w", err)
	}

	a.logger.InfoContext(ctx, "archiver: sweep complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", deleted),
	)
	return nil
}

// Run performs a sweep immediately and then once per day until the context
// is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := a.RunOnce(ctx, time.Now().UTC()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.ErrorContext(ctx, "archiver: sweep failed",
				slog.String("error", err.Error()),
			)
		}
		timer.Reset(archiveInterval)
	}
}
