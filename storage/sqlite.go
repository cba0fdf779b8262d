package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/giygas/herbolaria-api/interfaces"
)

// Compile-time check to ensure SQLiteRepository implements RecordRepository
var _ interfaces.RecordRepository = (*SQLiteRepository)(nil)

const defaultListLimit = 50

// SQLiteRepository stores saved prescriptions as JSON payloads in a single
// table, keyed by record id.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the database at path
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if path == "" {
		path = "prescriptions.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		draft_id TEXT NOT NULL DEFAULT '',
		patient TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS records_created_at ON records(created_at)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records index: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Save inserts or replaces a record
func (r *SQLiteRepository) Save(ctx context.Context, record interfaces.SavedRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", record.ID, err)
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO records(id, draft_id, patient, created_at, payload) VALUES(?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET draft_id=excluded.draft_id, patient=excluded.patient,
		created_at=excluded.created_at, payload=excluded.payload`,
		record.ID, record.DraftID, record.Patient, record.CreatedAt.UnixNano(), payload); err != nil {
		return fmt.Errorf("upsert record %s: %w", record.ID, err)
	}
	return nil
}

// Get loads a record by id
func (r *SQLiteRepository) Get(ctx context.Context, id string) (interfaces.SavedRecord, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.SavedRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return interfaces.SavedRecord{}, fmt.Errorf("select record %s: %w", id, err)
	}

	var record interfaces.SavedRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return interfaces.SavedRecord{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return record, nil
}

// List returns the most recent records first. A non-positive limit uses
// the default page size.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]interfaces.SavedRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM records ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]interfaces.SavedRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var record interfaces.SavedRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Ping checks the database connection
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
