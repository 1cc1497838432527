package database

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Afeter8/Fed.80/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	db, err := New(filepath.Join(t.TempDir(), "test_panel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLogEntriesNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := db.InsertLogEntry(ctx, models.LogEntry{
			Timestamp: "2024-01-01T00:00:00.000Z",
			Message:   fmt.Sprintf("entry %d", i),
		})
		require.NoError(t, err)
	}

	entries, err := db.RecentLogEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "entry 2", entries[0].Message)
	assert.Equal(t, "entry 0", entries[2].Message)

	entries, err = db.RecentLogEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "entry 2", entries[0].Message)
}

func TestPruneLogEntries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.InsertLogEntry(ctx, models.LogEntry{Message: fmt.Sprintf("entry %d", i)}))
	}

	removed, err := db.PruneLogEntries(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	entries, err := db.RecentLogEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "entry 4", entries[0].Message)
	assert.Equal(t, "entry 3", entries[1].Message)
}

func TestSnapshots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	latest, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := models.StatusSnapshot{Summary: json.RawMessage(`{"ok":false}`)}
	second := models.StatusSnapshot{
		Summary: json.RawMessage(`{"ok":true}`),
		Agents: []models.Agent{
			{Host: "h1", OS: "linux", LastSeen: "2024-01-01T00:00:00Z", State: "up"},
			{Host: "h2", OS: "windows", LastSeen: "2024-01-01T00:00:00Z", State: "down"},
		},
	}
	require.NoError(t, db.SaveSnapshot(ctx, first))
	require.NoError(t, db.SaveSnapshot(ctx, second))

	latest, err = db.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.AgentCount)
	assert.JSONEq(t, `{"ok":true}`, string(latest.Snapshot.Summary))
	assert.Equal(t, second.Agents, latest.Snapshot.Agents)
	assert.False(t, latest.TakenAt.IsZero())

	records, err := db.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[1].AgentCount)
	assert.Empty(t, records[1].Snapshot.Agents)
}

func TestSnapshotWithoutSummary(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSnapshot(ctx, models.StatusSnapshot{}))

	latest, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Nil(t, latest.Snapshot.Summary)
}
