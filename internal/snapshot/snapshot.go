// Package snapshot writes the per-run JSON artifact. The file is a
// plain dump of the extracted records so a run can be inspected or
// replayed without touching the database.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/matchpoint-analytics/matchpoint/internal/model"
)

// Writer writes snapshots under a base directory, one file per
// tournament key. Reruns overwrite.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Path returns the snapshot file path for a tournament key.
func (w *Writer) Path(key string) string {
	return filepath.Join(w.dir, fmt.Sprintf("matches_%s.json", key))
}

// Write marshals the snapshot and writes it atomically (temp file then
// rename) so a crashed run never leaves a truncated file behind.
// Returns the final path.
func (w *Writer) Write(snap model.Snapshot) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "snapshot: mkdir %s", w.dir)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "snapshot: marshal")
	}

	path := w.Path(snap.TournamentKey)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "snapshot: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", eris.Wrapf(err, "snapshot: rename %s", path)
	}
	return path, nil
}

// Read loads a previously written snapshot.
func (w *Writer) Read(key string) (model.Snapshot, error) {
	var snap model.Snapshot
	data, err := os.ReadFile(w.Path(key))
	if err != nil {
		return snap, eris.Wrapf(err, "snapshot: read %s", key)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, eris.Wrapf(err, "snapshot: decode %s", key)
	}
	return snap, nil
}
