package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"seedbank/internal/undo"
)

// SnapshotVersion represents the current serialization format for persisted snapshots.
const SnapshotVersion = 1

// Snapshot captures all persisted state required to rebuild the inventory.
type Snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Records Catalog   `json:"records"`
}

// ExportSnapshot returns a deep copy of the current inventory suitable for persistence.
func (s *Inventory) ExportSnapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot{
		Version: SnapshotVersion,
		SavedAt: s.now(),
		Records: s.records.Clone(),
	}
}

// ImportSnapshot replaces the inventory with the snapshot contents. History
// is reset so the imported state cannot be undone.
func (s *Inventory) ImportSnapshot(snapshot *Snapshot) error {
	if snapshot == nil {
		return errors.New("snapshot_missing")
	}
	if snapshot.Version > SnapshotVersion {
		return fmt.Errorf("snapshot version %d is newer than supported %d", snapshot.Version, SnapshotVersion)
	}
	records := make(Catalog, len(AllKinds))
	for kind, list := range snapshot.Records {
		if !kind.Valid() {
			return fmt.Errorf("%w: %q", ErrKindUnsupported, kind)
		}
		cloned := cloneRecords(list)
		sort.SliceStable(cloned, func(i, j int) bool { return cloned[i].Order < cloned[j].Order })
		for i := range cloned {
			cloned[i].Kind = kind
			cloned[i].Order = i
		}
		records[kind] = cloned
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.history.Reset(undo.Some(records))
	s.revision++
	return nil
}

// WriteSnapshotJSON streams the current snapshot as indented JSON.
func (s *Inventory) WriteSnapshotJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.ExportSnapshot())
}

// ImportSnapshotJSON decodes and imports a JSON snapshot payload.
func (s *Inventory) ImportSnapshotJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return s.ImportSnapshot(&snap)
}

// SaveTo persists a snapshot.json file atomically in dir.
func (s *Inventory) SaveTo(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty_dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "snapshot.tmp")
	file := filepath.Join(dir, "snapshot.json")
	if err := s.writeSnapshotFile(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, file); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *Inventory) writeSnapshotFile(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	if err := s.WriteSnapshotJSON(fh); err != nil {
		return err
	}
	return fh.Sync()
}

// LoadFrom restores state from snapshot.json in dir and reports whether a
// snapshot was found.
func (s *Inventory) LoadFrom(dir string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, "snapshot.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, s.ImportSnapshotJSON(data)
}

// SaveToWithRetention persists the current state and a timestamped backup,
// keeping only the newest retention backups.
func (s *Inventory) SaveToWithRetention(dir string, retention int) error {
	if err := s.SaveTo(dir); err != nil {
		return err
	}
	if retention <= 0 {
		return nil
	}
	ts := s.now().Format("2006-01-02T15-04-05.000Z")
	if err := s.writeSnapshotFile(filepath.Join(dir, "snapshot-"+ts+".json")); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	backups := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "snapshot-") && strings.HasSuffix(name, ".json") {
			backups = append(backups, filepath.Join(dir, name))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	for _, stale := range backups[min(retention, len(backups)):] {
		_ = os.Remove(stale)
	}
	return nil
}
