package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotKey(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{
			name: "utc hour",
			at:   time.Date(2025, 3, 1, 14, 59, 59, 0, time.UTC),
			want: "2025-03-01_14",
		},
		{
			name: "non-utc time normalized",
			at:   time.Date(2025, 3, 1, 23, 30, 0, 0, time.FixedZone("UTC+2", 2*3600)),
			want: "2025-03-01_21",
		},
		{
			name: "midnight boundary",
			at:   time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
			want: "2025-03-02_00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SlotKey(tt.at))
		})
	}
}

func TestFileHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "executions.json")

	h, err := NewFileHistory(path)
	require.NoError(t, err)

	rec := ExecutionRecord{
		Timestamp:     time.Now().Unix(),
		StrategiesRun: []string{"volume_momentum", "recent_listings"},
		TokensFound:   17,
	}
	require.NoError(t, h.Record("2025-03-01_14", rec))

	// A fresh instance must see the persisted record.
	reloaded, err := NewFileHistory(path)
	require.NoError(t, err)

	has, err := reloaded.Has("2025-03-01_14")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = reloaded.Has("2025-03-01_15")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFileHistoryMissingFileStartsEmpty(t *testing.T) {
	h, err := NewFileHistory(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	has, err := h.Has("2025-03-01_14")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFileHistoryCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileHistory(path)
	assert.Error(t, err)
}

func TestFileHistoryPrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.json")
	h, err := NewFileHistory(path)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, h.Record("2025-02-20_06", ExecutionRecord{Timestamp: now.Add(-72 * time.Hour).Unix()}))
	require.NoError(t, h.Record("2025-02-22_06", ExecutionRecord{Timestamp: now.Unix()}))

	removed, err := h.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	has, err := h.Has("2025-02-20_06")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = h.Has("2025-02-22_06")
	require.NoError(t, err)
	assert.True(t, has)

	// Pruning again is a no-op and must not rewrite the file.
	removed, err = h.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestFileHistoryWriteIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.json")
	h, err := NewFileHistory(path)
	require.NoError(t, err)

	require.NoError(t, h.Record("2025-03-01_14", ExecutionRecord{Timestamp: 1, TokensFound: 3}))

	// No temp file left behind, and the document on disk parses cleanly.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Executions map[string]ExecutionRecord `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 3, doc.Executions["2025-03-01_14"].TokensFound)
}

func TestFileHistorySetLastCheckPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.json")
	h, err := NewFileHistory(path)
	require.NoError(t, err)

	at := time.Date(2025, 3, 1, 14, 5, 0, 0, time.UTC)
	require.NoError(t, h.SetLastCheck(at))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		LastCheckTime int64 `json:"last_check_time"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, at.Unix(), doc.LastCheckTime)
}
