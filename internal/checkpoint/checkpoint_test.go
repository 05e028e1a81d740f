package checkpoint

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileManager_SaveLoad(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(Config{Enabled: true, Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = m.Load(ctx, "730d")
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	cp := &Checkpoint{
		Label:          "730d",
		LastCaptureRun: "data/raw/fiscaldata/20260109T002921Z_730d",
		LastCaptureEnd: "2026-01-08",
		UpdatedAt:      time.Date(2026, 1, 9, 0, 29, 21, 0, time.UTC),
	}
	require.NoError(t, m.Save(ctx, cp))

	got, err := m.Load(ctx, "730d")
	require.NoError(t, err)
	assert.Equal(t, cp, got)
}

func TestUpdate_MergesFields(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, err := NewManager(Config{Enabled: true, Dir: dir})
	require.NoError(t, err)
	now := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)

	require.NoError(t, Update(ctx, m, "weird/label", now, func(cp *Checkpoint) {
		cp.LastCaptureRun = "run-a"
	}))
	require.NoError(t, Update(ctx, m, "weird/label", now.Add(time.Hour), func(cp *Checkpoint) {
		cp.LastIngestedRun = "run-a"
		cp.HistoryRows = 12
	}))

	got, err := m.Load(ctx, "weird/label")
	require.NoError(t, err)
	assert.Equal(t, "run-a", got.LastCaptureRun)
	assert.Equal(t, "run-a", got.LastIngestedRun)
	assert.Equal(t, 12, got.HistoryRows)
	assert.Equal(t, now.Add(time.Hour), got.UpdatedAt)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "checkpoint_weird_label.json", entries[0].Name())
}

func TestNoopManager(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(Config{})
	require.NoError(t, err)

	require.NoError(t, Update(ctx, m, "x", time.Now(), func(*Checkpoint) {}))
	_, err = m.Load(ctx, "x")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}
