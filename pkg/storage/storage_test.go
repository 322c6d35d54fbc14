package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(uuid, product string, started time.Time) Run {
	return Run{
		RunUUID:          uuid,
		StartedAt:        started,
		FinishedAt:       started.Add(time.Minute),
		PlanPath:         "/plans/2026/003/plan.json",
		Satellite:        "GOES-19",
		ProductID:        product,
		Position:         "east",
		DateJulian:       "2026003",
		Backend:          "s3",
		Workers:          4,
		Expected:         24,
		RemoteObjects:    24,
		Succeeded:        20,
		Skipped:          2,
		Failed:           1,
		NotFound:         1,
		LocalPresent:     22,
		BytesTransferred: 1 << 20,
	}
}

func TestRecordAndListRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC)

	id, err := db.RecordRun(ctx, sampleRun("a", "ABI-L2-LSTF", t0), []Receipt{
		{SlotKey: "file02", ObjectKey: "k2", Status: "downloaded", Bytes: 10, Duration: 1500 * time.Millisecond},
		{SlotKey: "file01", Status: "not_found", Error: "no remote object"},
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = db.RecordRun(ctx, sampleRun("b", "GLM-L2-LCFA", t0.Add(time.Hour)), nil)
	require.NoError(t, err)

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].RunUUID)
	assert.Equal(t, t0, runs[1].StartedAt)
	assert.Equal(t, 20, runs[1].Succeeded)

	receipts, err := db.ListReceipts(ctx, id)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, "file01", receipts[0].SlotKey)
	assert.Equal(t, "", receipts[0].ObjectKey)
	assert.Equal(t, "no remote object", receipts[0].Error)
	assert.Equal(t, int64(10), receipts[1].Bytes)
	assert.Equal(t, 1500*time.Millisecond, receipts[1].Duration)
	assert.Zero(t, receipts[0].Duration)
}

func TestRecordRunRejectsBadStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.RecordRun(ctx, sampleRun("a", "ABI-L2-LSTF", time.Now()), []Receipt{{SlotKey: "file01", Status: "exploded"}})
	assert.Error(t, err)

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = db.RecordRun(ctx, Run{}, nil)
	assert.Error(t, err)
}

func TestStatsAndPrune(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, p := range []string{"ABI-L2-LSTF", "ABI-L2-LSTF", "ABI-L2-FDCF"} {
		_, err := db.RecordRun(ctx, sampleRun(string(rune('a'+i)), p, t0.AddDate(0, 0, i)), nil)
		require.NoError(t, err)
	}

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "ABI-L2-FDCF", stats[0].ProductID)
	assert.Equal(t, 2, stats[1].RunCount)
	assert.Equal(t, 40, stats[1].FilesDownloaded)
	assert.Equal(t, int64(2<<20), stats[1].BytesTransferred)

	n, err := db.PruneRuns(ctx, t0.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
