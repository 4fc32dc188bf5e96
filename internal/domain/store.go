package domain

import (
	"context"
	"time"
)

// SnapshotStore persists portfolio refresh history.
type SnapshotStore interface {
	Insert(ctx context.Context, snap PortfolioSnapshot) error
	Latest(ctx context.Context, wallet string) (PortfolioSnapshot, error)
	ListSince(ctx context.Context, wallet string, since time.Time, limit int) ([]PortfolioSnapshot, error)
	// ListBefore and DeleteBefore support cold-storage archival.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]PortfolioSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlobWriter uploads an object to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
