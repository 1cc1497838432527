package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Afeter8/Fed.80/pkg/models"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn *sql.DB
}

// New opens (or creates) the panel database at dbPath
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS log_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		message TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		taken_at TIMESTAMP NOT NULL,
		agent_count INTEGER NOT NULL,
		summary TEXT,
		agents TEXT NOT NULL
	);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// InsertLogEntry appends a transcript entry
func (db *DB) InsertLogEntry(ctx context.Context, entry models.LogEntry) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO log_entries (ts, message) VALUES (?, ?)
	`, entry.Timestamp, entry.Message)
	return err
}

// PruneLogEntries keeps only the newest keep entries
func (db *DB) PruneLogEntries(ctx context.Context, keep int) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM log_entries
		WHERE id NOT IN (SELECT id FROM log_entries ORDER BY id DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecentLogEntries returns up to n entries, newest first
func (db *DB) RecentLogEntries(ctx context.Context, n int) ([]models.LogEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT ts, message FROM log_entries ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var entry models.LogEntry
		if err := rows.Scan(&entry.Timestamp, &entry.Message); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SaveSnapshot archives one successful status poll
func (db *DB) SaveSnapshot(ctx context.Context, snapshot models.StatusSnapshot) error {
	agents := snapshot.Agents
	if agents == nil {
		agents = []models.Agent{}
	}
	agentsJSON, err := json.Marshal(agents)
	if err != nil {
		return fmt.Errorf("failed to marshal agents: %w", err)
	}

	var summary sql.NullString
	if len(snapshot.Summary) > 0 {
		summary = sql.NullString{String: string(snapshot.Summary), Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO snapshots (taken_at, agent_count, summary, agents)
		VALUES (?, ?, ?, ?)
	`, time.Now().UTC(), len(agents), summary, string(agentsJSON))
	return err
}

// LatestSnapshot returns the newest archived snapshot, or nil when none exists
func (db *DB) LatestSnapshot(ctx context.Context) (*models.SnapshotRecord, error) {
	records, err := db.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// ListSnapshots returns up to limit archived snapshots, newest first
func (db *DB) ListSnapshots(ctx context.Context, limit int) ([]models.SnapshotRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, taken_at, agent_count, summary, agents
		FROM snapshots ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.SnapshotRecord
	for rows.Next() {
		var rec models.SnapshotRecord
		var summary sql.NullString
		var agents string
		if err := rows.Scan(&rec.ID, &rec.TakenAt, &rec.AgentCount, &summary, &agents); err != nil {
			return nil, err
		}
		if summary.Valid {
			rec.Snapshot.Summary = json.RawMessage(summary.String)
		}
		if err := json.Unmarshal([]byte(agents), &rec.Snapshot.Agents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agents of snapshot %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
