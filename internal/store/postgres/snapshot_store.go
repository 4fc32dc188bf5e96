package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supafund/supafund-engine/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given connection
// pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectCols = `id, wallet, total_pnl, total_pnl_pct, active_positions,
	win_rate, weekly_perf, monthly_perf, positions, reward_streak, taken_at`

func scanSnapshotRow(row pgx.Row) (domain.PortfolioSnapshot, error) {
	var s domain.PortfolioSnapshot
	err := row.Scan(
		&s.ID, &s.Wallet,
		&s.Metrics.TotalProfitLoss, &s.Metrics.TotalProfitLossPercentage,
		&s.Metrics.ActivePositions, &s.Metrics.WinRate,
		&s.Metrics.WeeklyPerformance, &s.Metrics.MonthlyPerformance,
		&s.Positions, &s.RewardStreak, &s.TakenAt,
	)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	return s, nil
}

func scanSnapshotRows(rows pgx.Rows) ([]domain.PortfolioSnapshot, error) {
	var snapshots []domain.PortfolioSnapshot
	for rows.Next() {
		s, err := scanSnapshotRow(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// Insert records one completed refresh cycle.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.PortfolioSnapshot) error {
	const query = `
		INSERT INTO portfolio_snapshots (
			id, wallet, total_pnl, total_pnl_pct, active_positions,
			win_rate, weekly_perf, monthly_perf, positions, reward_streak, taken_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		snap.ID, snap.Wallet,
		snap.Metrics.TotalProfitLoss, snap.Metrics.TotalProfitLossPercentage,
		snap.Metrics.ActivePositions, snap.Metrics.WinRate,
		snap.Metrics.WeeklyPerformance, snap.Metrics.MonthlyPerformance,
		snap.Positions, snap.RewardStreak, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a wallet.
func (s *SnapshotStore) Latest(ctx context.Context, wallet string) (domain.PortfolioSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotSelectCols+` FROM portfolio_snapshots
		 WHERE wallet = $1
		 ORDER BY taken_at DESC
		 LIMIT 1`, wallet)

	snap, err := scanSnapshotRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PortfolioSnapshot{}, domain.ErrNotFound
		}
		return domain.PortfolioSnapshot{}, fmt.Errorf("postgres: latest snapshot for %s: %w", wallet, err)
	}
	return snap, nil
}

// ListSince returns snapshots for a wallet taken at or after since, oldest
// first, capped at limit when limit is positive.
func (s *SnapshotStore) ListSince(ctx context.Context, wallet string, since time.Time, limit int) ([]domain.PortfolioSnapshot, error) {
	query := `SELECT ` + snapshotSelectCols + ` FROM portfolio_snapshots
		WHERE wallet = $1 AND taken_at >= $2
		ORDER BY taken_at ASC`
	args := []any{wallet, since}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots since: %w", err)
	}
	defer rows.Close()

	snapshots, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots since: %w", err)
	}
	return snapshots, nil
}

// ListBefore returns snapshots taken strictly before cutoff across all
// wallets, oldest first. Used by the archiver to page out cold history.
func (s *SnapshotStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.PortfolioSnapshot, error) {
	query := `SELECT ` + snapshotSelectCols + ` FROM portfolio_snapshots
		WHERE taken_at < $1
		ORDER BY taken_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before: %w", err)
	}
	defer rows.Close()

	snapshots, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots before: %w", err)
	}
	return snapshots, nil
}

// DeleteBefore removes snapshots taken strictly before cutoff and returns
// the number of rows deleted.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM portfolio_snapshots WHERE taken_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
