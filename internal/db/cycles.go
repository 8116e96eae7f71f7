package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/OpenSourceIronman/BikeRADAR/internal/objects"
	"github.com/OpenSourceIronman/BikeRADAR/internal/pipeline"
)

const (
	defaultCycleLimit = 50
	maxCycleLimit     = 1000
)

// CycleRecord is one persisted scan cycle.
type CycleRecord struct {
	CycleID         string        `json:"cycle_id"`
	Seq             int           `json:"cycle"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	Velocity        float64       `json:"velocity"`
	PollRate        float64       `json:"poll_rate"`
	HeadingDeg      float64       `json:"heading_deg"`
	ClusterMode     string        `json:"cluster_mode"`
	NoData          bool          `json:"no_data"`
	Partial         bool          `json:"partial"`
	CurrentCells    int           `json:"current_cells"`
	StationaryCells int           `json:"stationary_cells"`
	ObjectCount     int           `json:"object_count"`
}

// ObjectRecord is one persisted stationary object.
type ObjectRecord struct {
	ObjectID   string               `json:"object_id"`
	CycleID    string               `json:"cycle_id"`
	Seq        int                  `json:"id"`
	GroupID    int                  `json:"group_id"`
	PointCount int                  `json:"point_count"`
	Points     []objects.PolarPoint `json:"points"`
	OutlineWKT string               `json:"outline_wkt"`
}

// RecordCycle stores a cycle and its objects in one transaction.
func (db *DB) RecordCycle(ctx context.Context, res *pipeline.CycleResult) error {
	if res == nil {
		return fmt.Errorf("record cycle: nil result")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	cycleID := res.CycleID.String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO scan_cycles (
			cycle_id, cycle_seq, started_unix_nanos, duration_nanos, velocity,
			poll_rate, heading_deg, cluster_mode, no_data, partial,
			current_cells, stationary_cells, object_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cycleID, res.Cycle, res.StartedAt.UnixNano(), int64(res.Duration), res.Params.Velocity,
		res.Params.PollRate, res.Params.HeadingDeg, res.Mode.String(), res.NoData, res.Partial,
		res.CurrentCells, res.StationaryCells, len(res.Objects),
	)
	if err != nil {
		return fmt.Errorf("insert cycle %d: %w", res.Cycle, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stationary_objects (
			object_id, cycle_id, object_seq, group_id, point_count, points_json, outline_wkt
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare object insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range res.Objects {
		points, err := json.Marshal(o.Points)
		if err != nil {
			return fmt.Errorf("encode object %d points: %w", o.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), cycleID, o.ID, o.GroupID, len(o.Points), string(points), o.OutlineWKT(),
		); err != nil {
			return fmt.Errorf("insert object %d of cycle %d: %w", o.ID, res.Cycle, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cycle %d: %w", res.Cycle, err)
	}
	return nil
}

// HandleCycle lets the database act as a pipeline sink.
func (db *DB) HandleCycle(ctx context.Context, res *pipeline.CycleResult) error {
	return db.RecordCycle(ctx, res)
}

// RecentCycles returns up to limit cycles, newest first. A non-positive
// limit selects the default of 50; limits are capped at 1000.
func (db *DB) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = defaultCycleLimit
	}
	if limit > maxCycleLimit {
		limit = maxCycleLimit
	}

	rows, err := db.QueryContext(ctx,
		`SELECT cycle_id, cycle_seq, started_unix_nanos, duration_nanos, velocity,
			poll_rate, heading_deg, cluster_mode, no_data, partial,
			current_cells, stationary_cells, object_count
		FROM scan_cycles
		ORDER BY started_unix_nanos DESC, cycle_seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cycles := []CycleRecord{}
	for rows.Next() {
		var (
			c        CycleRecord
			started  int64
			duration int64
		)
		if err := rows.Scan(
			&c.CycleID, &c.Seq, &started, &duration, &c.Velocity,
			&c.PollRate, &c.HeadingDeg, &c.ClusterMode, &c.NoData, &c.Partial,
			&c.CurrentCells, &c.StationaryCells, &c.ObjectCount,
		); err != nil {
			return nil, err
		}
		c.StartedAt = time.Unix(0, started).UTC()
		c.Duration = time.Duration(duration)
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cycles, nil
}

// ObjectsForCycle returns the objects recorded for cycleID in aggregation
// order. An unknown cycle yields an empty list.
func (db *DB) ObjectsForCycle(ctx context.Context, cycleID string) ([]ObjectRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT object_id, cycle_id, object_seq, group_id, point_count, points_json, outline_wkt
		FROM stationary_objects
		WHERE cycle_id = ?
		ORDER BY object_seq`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	objs := []ObjectRecord{}
	for rows.Next() {
		var (
			o          ObjectRecord
			pointsJSON string
		)
		if err := rows.Scan(&o.ObjectID, &o.CycleID, &o.Seq, &o.GroupID, &o.PointCount, &pointsJSON, &o.OutlineWKT); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pointsJSON), &o.Points); err != nil {
			return nil, fmt.Errorf("decode points of object %s: %w", o.ObjectID, err)
		}
		objs = append(objs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return objs, nil
}

// CycleCount returns the number of recorded cycles.
func (db *DB) CycleCount(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_cycles`).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}
