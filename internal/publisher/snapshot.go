package publisher

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/airblackbox/runtime-aibom-emitter/internal/emission"
)

// Snapshot is the exported document.
type Snapshot struct {
	Emissions []emission.Emission `json:"emissions"`
	Count     int                 `json:"count"`
}

func (p *Publisher) snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := append(make([]emission.Emission, 0, len(p.emissions)), p.emissions...)
	return Snapshot{Emissions: list, Count: len(list)}
}

// WriteSnapshot encodes every collected emission to w.
func (p *Publisher) WriteSnapshot(w io.Writer) (int, error) {
	snap := p.snapshot()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	return snap.Count, nil
}

// ExportSnapshot replaces the file at path with a complete snapshot of the
// collected emissions and returns how many were written.
func (p *Publisher) ExportSnapshot(path string) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".emissions-*.json")
	if err != nil {
		return 0, fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := p.WriteSnapshot(tmp)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("replace snapshot: %w", err)
	}
	return n, nil
}
