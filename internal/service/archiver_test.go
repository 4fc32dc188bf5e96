package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supafund/supafund-engine/internal/domain"
)

type fakeBlobWriter struct {
	objects map[string][]byte
	err     error
}

func newFakeBlobWriter() *fakeBlobWriter {
	return &fakeBlobWriter{objects: make(map[string][]byte)}
}

func (f *fakeBlobWriter) Put(_ context.Context, path string, data []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.objects[path] = data
	return nil
}

func oldSnapshot(id, wallet string, takenAt time.Time) domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		ID:      id,
		Wallet:  wallet,
		TakenAt: takenAt,
	}
}

func TestArchiverRunOnce(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	old := now.Add(-100 * 24 * time.Hour)

	store := &fakeSnapshotStore{
		beforeRows: []domain.PortfolioSnapshot{
			oldSnapshot("s1", "0xaaa", old),
			oldSnapshot("s2", "0xaaa", old.Add(time.Hour)),
			oldSnapshot("s3", "0xbbb", old),
		},
	}
	blob := newFakeBlobWriter()

	arch := NewArchiver(store, blob, 90*24*time.Hour, testLogger())
	require.NoError(t, arch.RunOnce(context.Background(), now))

	require.Len(t, blob.objects, 2)

	var rows []archivedSnapshot
	require.NoError(t, json.Unmarshal(blob.objects["snapshots/0xaaa/2026-08-28.json"], &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "s1", rows[0].ID)

	require.NoError(t, json.Unmarshal(blob.objects["snapshots/0xbbb/2026-08-28.json"], &rows))
	require.Len(t, rows, 1)

	require.EqualValues(t, 3, store.deleted)
}

func TestArchiverNoExpiredRows(t *testing.T) {
	store := &fakeSnapshotStore{}
	blob := newFakeBlobWriter()

	arch := NewArchiver(store, blob, 90*24*time.Hour, testLogger())
	require.NoError(t, arch.RunOnce(context.Background(), time.Now().UTC()))

	require.Empty(t, blob.objects)
	require.Zero(t, store.deleted)
}

func TestArchiverUploadFailureKeepsRows(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeSnapshotStore{
		beforeRows: []domain.PortfolioSnapshot{
			oldSnapshot("s1", "0xaaa", now.Add(-100*24*time.Hour)),
		},
	}
	blob := newFakeBlobWriter()
	blob.err = errors.New("bucket unreachable")

	arch := NewArchiver(store, blob, 90*24*time.Hour, testLogger())
	require.Error(t, arch.RunOnce(context.Background(), now))

	// Rows must survive until the upload succeeds.
	require.Zero(t, store.deleted)
	require.Len(t, store.beforeRows, 1)
}
