package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/protocol"
)

// SnapshotQuery represents query parameters for retrieving snapshots
type SnapshotQuery struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OperationQuery represents query parameters for the operation audit
type OperationQuery struct {
	Limit      int
	Name       string
	FailedOnly bool
}

// StoreStats represents database statistics
type StoreStats struct {
	TotalSnapshots   int       `json:"total_snapshots"`
	TotalOperations  int       `json:"total_operations"`
	FailedOperations int       `json:"failed_operations"`
	LastCleanup      time.Time `json:"last_cleanup"`
}

// GetSnapshots retrieves snapshots, newest first
func (s *StateStore) GetSnapshots(query SnapshotQuery) ([]protocol.Snapshot, error) {
	var args []interface{}

	sqlQuery := `
		SELECT id, timestamp, frequency, mode, channel, channel_mode,
			   clarifier_direction, clarifier_offset, rx_clarifier, tx_clarifier,
			   power_unit, watts
		FROM snapshots
		WHERE 1=1
	`

	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, query.Since.UTC())
	}
	if query.Until != nil {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, query.Until.UTC())
	}

	sqlQuery += " ORDER BY id DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)

		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []protocol.Snapshot
	for rows.Next() {
		var snap protocol.Snapshot
		var mode, channelMode, clarDir, unit string
		err := rows.Scan(
			&snap.ID,
			&snap.Timestamp,
			&snap.Frequency,
			&mode,
			&snap.Channel,
			&channelMode,
			&clarDir,
			&snap.ClarifierOffset,
			&snap.RxClarifier,
			&snap.TxClarifier,
			&unit,
			&snap.Watts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Mode = cat.Mode(mode)
		snap.ChannelMode = cat.ChannelMode(channelMode)
		snap.ClarifierDirection = cat.ClarifierDirection(clarDir)
		snap.PowerUnit = cat.PowerUnit(unit)
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// GetRecentSnapshots retrieves the most recent snapshots
func (s *StateStore) GetRecentSnapshots(limit int) ([]protocol.Snapshot, error) {
	return s.GetSnapshots(SnapshotQuery{Limit: limit})
}

// GetLatestSnapshot returns the newest snapshot, or nil when there is none
func (s *StateStore) GetLatestSnapshot() (*protocol.Snapshot, error) {
	snaps, err := s.GetSnapshots(SnapshotQuery{Limit: 1})
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return &snaps[0], nil
}

// GetOperations retrieves audited operations, newest first
func (s *StateStore) GetOperations(query OperationQuery) ([]protocol.Operation, error) {
	var args []interface{}

	sqlQuery := `
		SELECT id, op_id, timestamp, name, params, success, error_kind, error, duration_ms
		FROM operations
		WHERE 1=1
	`

	if query.Name != "" {
		sqlQuery += " AND name = ?"
		args = append(args, query.Name)
	}
	if query.FailedOnly {
		sqlQuery += " AND success = FALSE"
	}

	sqlQuery += " ORDER BY id DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []protocol.Operation
	for rows.Next() {
		var op protocol.Operation
		err := rows.Scan(
			&op.ID,
			&op.OpID,
			&op.Timestamp,
			&op.Name,
			&op.Params,
			&op.Success,
			&op.ErrorKind,
			&op.Error,
			&op.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// GetStats retrieves database statistics
func (s *StateStore) GetStats() (*StoreStats, error) {
	var stats StoreStats
	var lastCleanup sql.NullTime

	err := s.db.QueryRow(`
		SELECT total_snapshots, total_operations, failed_operations, last_cleanup
		FROM store_stats WHERE id = 1
	`).Scan(&stats.TotalSnapshots, &stats.TotalOperations, &stats.FailedOperations, &lastCleanup)
	if err != nil {
		return nil, fmt.Errorf("failed to get store stats: %w", err)
	}

	if lastCleanup.Valid {
		stats.LastCleanup = lastCleanup.Time
	}

	return &stats, nil
}

// GetSnapshotCount returns the number of stored snapshots
func (s *StateStore) GetSnapshotCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&count)
	return count, err
}
