package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/logging"
	"github.com/dougsko/cwbeacon/pkg/remote"
	_ "github.com/mattn/go-sqlite3"
)

// Journal keeps a bounded history of remote commands and beacon cycles in
// SQLite
type Journal struct {
	db         *sql.DB
	dbPath     string
	maxRecords int
}

// NewJournal opens or creates the journal database. maxRecords bounds each
// table; zero keeps everything.
func NewJournal(dbPath string, maxRecords int) (*Journal, error) {
	j := &Journal{
		dbPath:     dbPath,
		maxRecords: maxRecords,
	}

	if err := j.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	return j, nil
}

// initialize sets up the database connection and creates tables
func (j *Journal) initialize() error {
	if j.dbPath == "" {
		j.dbPath = "./cwbeacon.db"
	}

	if err := os.MkdirAll(filepath.Dir(j.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := j.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	j.db = db

	if err := j.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := j.createIndexes(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logging.Infof("storage", "Journal initialized: %s (max %d records)", j.dbPath, j.maxRecords)
	return nil
}

// createTables creates the database schema
func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		source TEXT NOT NULL,
		line TEXT NOT NULL,
		field TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		rssi INTEGER,
		snr REAL
	);

	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number INTEGER NOT NULL,
		started DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL DEFAULT '',
		wpm INTEGER NOT NULL DEFAULT 0,
		carrier_hz INTEGER NOT NULL DEFAULT 0,
		cw BOOLEAN NOT NULL DEFAULT FALSE,
		fsk BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS journal_stats (
		id INTEGER PRIMARY KEY,
		total_commands INTEGER NOT NULL DEFAULT 0,
		total_rejected INTEGER NOT NULL DEFAULT 0,
		total_cycles INTEGER NOT NULL DEFAULT 0,
		total_failed_cycles INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO journal_stats (id) VALUES (1);
	`

	_, err := j.db.Exec(schema)
	return err
}

// createIndexes creates database indexes for the journal queries
func (j *Journal) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_commands_timestamp ON commands(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_commands_status ON commands(status)",
		"CREATE INDEX IF NOT EXISTS idx_commands_source ON commands(source)",
		"CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started DESC)",
	}

	for _, indexSQL := range indexes {
		if _, err := j.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// RecordCommand stores one remote command outcome
func (j *Journal) RecordCommand(rec remote.CommandRecord) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rssi sql.NullInt64
	var snr sql.NullFloat64
	if rec.RSSI != nil {
		rssi = sql.NullInt64{Int64: int64(*rec.RSSI), Valid: true}
	}
	if rec.SNR != nil {
		snr = sql.NullFloat64{Float64: *rec.SNR, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO commands (timestamp, source, line, field, value, status, error, rssi, snr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Time, rec.Source, rec.Line, rec.Field, rec.Value, rec.Status, rec.Error, rssi, snr)
	if err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}

	rejected := 0
	if rec.Status == remote.StatusRejected {
		rejected = 1
	}
	_, err = tx.Exec(`
		UPDATE journal_stats SET
			total_commands = total_commands + 1,
			total_rejected = total_rejected + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`, rejected)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}

	if err := j.cleanup(tx, "commands", "timestamp"); err != nil {
		logging.Warnf("storage", "Failed to cleanup old commands: %v", err)
	}

	return tx.Commit()
}

// RecordCycle stores one beacon cycle report
func (j *Journal) RecordCycle(report beacon.CycleReport) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO cycles (number, started, duration_ms, text, wpm, carrier_hz, cw, fsk, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.Number, report.Started, report.Duration.Milliseconds(), report.Text,
		report.WPM, report.CarrierHz, report.CW, report.FSK, report.Error)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}

	failed := 0
	if report.Error != "" {
		failed = 1
	}
	_, err = tx.Exec(`
		UPDATE journal_stats SET
			total_cycles = total_cycles + 1,
			total_failed_cycles = total_failed_cycles + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`, failed)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}

	if err := j.cleanup(tx, "cycles", "started"); err != nil {
		logging.Warnf("storage", "Failed to cleanup old cycles: %v", err)
	}

	return tx.Commit()
}

// Cleanup trims both tables to the record limit
func (j *Journal) Cleanup() error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := j.cleanup(tx, "commands", "timestamp"); err != nil {
		return err
	}
	if err := j.cleanup(tx, "cycles", "started"); err != nil {
		return err
	}

	return tx.Commit()
}

// cleanup removes the oldest rows of table beyond the record limit. table
// and column come from this package only.
func (j *Journal) cleanup(tx *sql.Tx, table, column string) error {
	if j.maxRecords <= 0 {
		return nil
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		return err
	}
	if count <= j.maxRecords {
		return nil
	}

	query := fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE id IN (
			SELECT id FROM %[1]s
			ORDER BY %[2]s ASC, id ASC
			LIMIT ?
		)
	`, table, column)
	if _, err := tx.Exec(query, count-j.maxRecords); err != nil {
		return err
	}

	_, err := tx.Exec("UPDATE journal_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	return err
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
