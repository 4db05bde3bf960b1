package ledger

import "time"

// Schema creates the ledger tables.
const Schema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	emission_id TEXT NOT NULL,
	aibom_id TEXT NOT NULL,
	agent_id TEXT NOT NULL DEFAULT '',
	component_type TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	version TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_text TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_aibom ON deliveries(aibom_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_emission ON deliveries(emission_id);

CREATE TABLE IF NOT EXISTS exports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL,
	count INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
`

// DeliveryRecord is one persisted delivery attempt.
type DeliveryRecord struct {
	ID            int64     `json:"id"`
	EmissionID    string    `json:"emission_id"`
	AIBOMID       string    `json:"aibom_id"`
	AgentID       string    `json:"agent_id"`
	ComponentType string    `json:"component_type"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Provider      string    `json:"provider"`
	Status        string    `json:"status"` // sent, failed
	ErrorText     string    `json:"error_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ExportRecord is one snapshot export.
type ExportRecord struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryFilter narrows ListDeliveries.
type DeliveryFilter struct {
	AIBOMID string
	Status  string
	Limit   int
}
