// Package ledger keeps an append-only SQLite audit trail of downstream
// deliveries and snapshot exports. It is write-mostly: nothing here is loaded
// back into publisher state.
package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/airblackbox/runtime-aibom-emitter/internal/publisher"
)

const defaultListLimit = 100

// Ledger records publication activity.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the ledger database at dbPath.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger db: %w", err)
	}
	l, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// New applies the schema to an already opened database.
func New(db *sql.DB) (*Ledger, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordDelivery implements publisher.DeliveryRecorder.
func (l *Ledger) RecordDelivery(d publisher.Delivery) error {
	errText := ""
	if d.Err != nil {
		errText = d.Err.Error()
	}
	_, err := l.db.Exec(`
		INSERT INTO deliveries (emission_id, aibom_id, agent_id, component_type, name, version, provider, status, error_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.EmissionID, d.Payload.TargetID, d.AgentID, d.Payload.ComponentType, d.Payload.Name,
		d.Payload.Version, d.Payload.Provider, d.Status, errText, l.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// RecordExport stores a snapshot export.
func (l *Ledger) RecordExport(path string, count int) error {
	_, err := l.db.Exec(`INSERT INTO exports (path, count, created_at) VALUES (?, ?, ?)`,
		path, count, l.now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}
	return nil
}

// ListDeliveries returns delivery attempts, newest first.
func (l *Ledger) ListDeliveries(f DeliveryFilter) ([]DeliveryRecord, error) {
	var where []string
	var args []any
	if f.AIBOMID != "" {
		where = append(where, "aibom_id = ?")
		args = append(args, f.AIBOMID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	query := `SELECT id, emission_id, aibom_id, agent_id, component_type, name, version, provider, status, error_text, created_at FROM deliveries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	out := []DeliveryRecord{}
	for rows.Next() {
		var r DeliveryRecord
		var created string
		if err := rows.Scan(&r.ID, &r.EmissionID, &r.AIBOMID, &r.AgentID, &r.ComponentType,
			&r.Name, &r.Version, &r.Provider, &r.Status, &r.ErrorText, &created); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListExports returns snapshot exports, newest first.
func (l *Ledger) ListExports(limit int) ([]ExportRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := l.db.Query(`SELECT id, path, count, created_at FROM exports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	out := []ExportRecord{}
	for rows.Next() {
		var r ExportRecord
		var created string
		if err := rows.Scan(&r.ID, &r.Path, &r.Count, &created); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
