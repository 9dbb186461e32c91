package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ViewStore persists per-report view counters in a SQLite database. Recording
// a view is best-effort: failures are logged and never surfaced to the
// client, since losing a counter must not break report serving.
type ViewStore struct {
	db *sql.DB
}

// OpenViewStore opens (or creates) fluxdash.db in dbDir.
//
// SQLite via modernc.org/sqlite keeps the store a single CGO-free file; WAL
// mode lets the dashboard pages read counters while report requests write.
func OpenViewStore(dbDir string) (*ViewStore, error) {
	if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dbPath := filepath.Join(dbDir, "fluxdash.db")

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}

	// SQLite supports a single writer; one pooled connection avoids
	// SQLITE_BUSY churn under concurrent report requests.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS report_views (
		report     TEXT PRIMARY KEY,  -- path relative to its serving root
		views      INTEGER NOT NULL DEFAULT 0,
		last_seen  DATETIME
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &ViewStore{db: db}, nil
}

// Close closes the underlying database.
func (vs *ViewStore) Close() error {
	if vs == nil || vs.db == nil {
		return nil
	}
	return vs.db.Close()
}

// Record increments the view counter for a report. Safe to call on a nil
// store (view counting disabled).
func (vs *ViewStore) Record(report string) {
	if vs == nil || vs.db == nil {
		return
	}
	_, err := vs.db.Exec(`
		INSERT INTO report_views (report, views, last_seen)
		VALUES (?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(report) DO UPDATE SET
			views = views + 1,
			last_seen = CURRENT_TIMESTAMP`, report)
	if err != nil {
		log.Printf("views: could not record %s: %v", report, err)
	}
}

// Count returns the stored view count for a report, 0 when unknown.
func (vs *ViewStore) Count(report string) int64 {
	if vs == nil || vs.db == nil {
		return 0
	}
	var n int64
	err := vs.db.QueryRow(`SELECT views FROM report_views WHERE report = ?`, report).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		log.Printf("views: could not read %s: %v", report, err)
	}
	return n
}

// Counts returns all stored counters keyed by report path.
func (vs *ViewStore) Counts() map[string]int64 {
	out := make(map[string]int64)
	if vs == nil || vs.db == nil {
		return out
	}
	rows, err := vs.db.Query(`SELECT report, views FROM report_views`)
	if err != nil {
		log.Printf("views: could not list counters: %v", err)
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var report string
		var n int64
		if err := rows.Scan(&report, &n); err != nil {
			continue
		}
		out[report] = n
	}
	return out
}
