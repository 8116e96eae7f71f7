package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/motion"
	"github.com/OpenSourceIronman/BikeRADAR/internal/objects"
	"github.com/OpenSourceIronman/BikeRADAR/internal/pipeline"
	"github.com/OpenSourceIronman/BikeRADAR/internal/sensor"
	"github.com/OpenSourceIronman/BikeRADAR/internal/timeutil"
)

var _ pipeline.Sink = (*DB)(nil)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "radar.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// referenceCycles runs the two-cycle reference scene and returns both
// results.
func referenceCycles(t *testing.T) (*pipeline.CycleResult, *pipeline.CycleResult) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	e, err := pipeline.NewEngine(pipeline.Options{
		MaxRadius: grid.HardMaxRadius,
		Params:    motion.Params{Velocity: 10, PollRate: 2},
		Clock:     clock,
	})
	require.NoError(t, err)

	first, err := e.RunCycle(sensor.Frame{Cells: []grid.Cell{{Radius: 60, Angle: 0}, {Radius: 60, Angle: 3}}})
	require.NoError(t, err)
	clock.Advance(500 * time.Millisecond)
	second, err := e.RunCycle(sensor.Frame{Cells: []grid.Cell{
		{Radius: 40, Angle: 0}, {Radius: 40, Angle: 3}, {Radius: 80, Angle: 0},
	}})
	require.NoError(t, err)
	return first, second
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := newTestDB(t)

	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op.
	again, err := NewDB(db.Path())
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestMigrateDownAndUp(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='stationary_objects'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestRecordCycle_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	first, second := referenceCycles(t)

	require.NoError(t, db.RecordCycle(ctx, first))
	require.NoError(t, db.HandleCycle(ctx, second))

	cycles, err := db.RecentCycles(ctx, 0)
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	newest := cycles[0]
	assert.Equal(t, second.CycleID.String(), newest.CycleID)
	assert.Equal(t, 2, newest.Seq)
	assert.True(t, second.StartedAt.Equal(newest.StartedAt))
	assert.Equal(t, 10.0, newest.Velocity)
	assert.Equal(t, 2.0, newest.PollRate)
	assert.Equal(t, "two_pass", newest.ClusterMode)
	assert.Equal(t, 3, newest.CurrentCells)
	assert.Equal(t, 1, newest.StationaryCells)
	assert.Equal(t, 1, newest.ObjectCount)
	assert.Equal(t, first.CycleID.String(), cycles[1].CycleID)

	limited, err := db.RecentCycles(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	objs, err := db.ObjectsForCycle(ctx, newest.CycleID)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, 0, objs[0].Seq)
	assert.Equal(t, 1, objs[0].PointCount)
	assert.Equal(t, []objects.PolarPoint{{Radius: 40, Angle: 0}}, objs[0].Points)
	assert.Equal(t, second.Objects[0].OutlineWKT(), objs[0].OutlineWKT)
	assert.True(t, strings.HasPrefix(objs[0].OutlineWKT, "POINT"))

	none, err := db.ObjectsForCycle(ctx, "no-such-cycle")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRecordCycle_DuplicateRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, second := referenceCycles(t)

	require.NoError(t, db.RecordCycle(ctx, second))
	assert.Error(t, db.RecordCycle(ctx, second))

	n, err := db.CycleCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	objs, err := db.ObjectsForCycle(ctx, second.CycleID.String())
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	assert.Error(t, db.RecordCycle(ctx, nil))
}

func TestObjectsRequireCycle(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec(`INSERT INTO stationary_objects (
		object_id, cycle_id, object_seq, group_id, point_count, points_json, outline_wkt
	) VALUES ('o1', 'missing', 0, 0, 0, '[]', 'POINT EMPTY')`)
	assert.Error(t, err, "foreign key should reject orphan objects")
}

func localHostRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, second := referenceCycles(t)
	require.NoError(t, db.RecordCycle(ctx, second))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/backup"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "backup-")

	zr, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3")))
}
