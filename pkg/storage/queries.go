package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/remote"
)

// CommandQuery represents query parameters for retrieving commands
type CommandQuery struct {
	Limit  int
	Offset int
	Since  *time.Time
	Source string // "lora", "http", or "" for both
	Status string
}

// JournalStats represents database statistics
type JournalStats struct {
	TotalCommands     int        `json:"total_commands"`
	TotalRejected     int        `json:"total_rejected"`
	TotalCycles       int        `json:"total_cycles"`
	TotalFailedCycles int        `json:"total_failed_cycles"`
	LastCleanup       *time.Time `json:"last_cleanup,omitempty"`
}

// GetCommands retrieves commands, newest first
func (j *Journal) GetCommands(query CommandQuery) ([]remote.CommandRecord, error) {
	var args []interface{}
	sqlQuery := `
		SELECT timestamp, source, line, field, value, status, error, rssi, snr
		FROM commands
		WHERE 1=1
	`

	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, *query.Since)
	}
	if query.Source != "" {
		sqlQuery += " AND source = ?"
		args = append(args, query.Source)
	}
	if query.Status != "" {
		sqlQuery += " AND status = ?"
		args = append(args, query.Status)
	}

	sqlQuery += " ORDER BY timestamp DESC, id DESC"
	sqlQuery, args = paginate(sqlQuery, args, query.Limit, query.Offset)

	rows, err := j.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var records []remote.CommandRecord
	for rows.Next() {
		var rec remote.CommandRecord
		var rssi sql.NullInt64
		var snr sql.NullFloat64
		if err := rows.Scan(&rec.Time, &rec.Source, &rec.Line, &rec.Field, &rec.Value,
			&rec.Status, &rec.Error, &rssi, &snr); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		if rssi.Valid {
			v := int(rssi.Int64)
			rec.RSSI = &v
		}
		if snr.Valid {
			v := snr.Float64
			rec.SNR = &v
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetCycles retrieves cycle reports, newest first
func (j *Journal) GetCycles(limit, offset int) ([]beacon.CycleReport, error) {
	sqlQuery, args := paginate(`
		SELECT number, started, duration_ms, text, wpm, carrier_hz, cw, fsk, error
		FROM cycles
		ORDER BY started DESC, id DESC
	`, nil, limit, offset)

	rows, err := j.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var reports []beacon.CycleReport
	for rows.Next() {
		var r beacon.CycleReport
		var durationMs int64
		if err := rows.Scan(&r.Number, &r.Started, &durationMs, &r.Text, &r.WPM,
			&r.CarrierHz, &r.CW, &r.FSK, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		reports = append(reports, r)
	}

	return reports, rows.Err()
}

// GetStats returns the journal statistics
func (j *Journal) GetStats() (JournalStats, error) {
	var stats JournalStats
	var lastCleanup sql.NullTime

	err := j.db.QueryRow(`
		SELECT total_commands, total_rejected, total_cycles, total_failed_cycles, last_cleanup
		FROM journal_stats WHERE id = 1
	`).Scan(&stats.TotalCommands, &stats.TotalRejected, &stats.TotalCycles,
		&stats.TotalFailedCycles, &lastCleanup)
	if err != nil {
		return stats, fmt.Errorf("failed to query stats: %w", err)
	}

	if lastCleanup.Valid {
		stats.LastCleanup = &lastCleanup.Time
	}
	return stats, nil
}

// CountCommands returns the number of stored commands
func (j *Journal) CountCommands() (int, error) {
	var count int
	err := j.db.QueryRow("SELECT COUNT(*) FROM commands").Scan(&count)
	return count, err
}

func paginate(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit <= 0 {
		return query, args
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}
	return query, args
}
