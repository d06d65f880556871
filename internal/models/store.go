package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"seedbank/internal/undo"
)

var (
	// ErrRecordNotFound is returned when a record cannot be located.
	ErrRecordNotFound = errors.New("record_not_found")
	// ErrKindUnsupported indicates the requested record kind does not exist.
	ErrKindUnsupported = errors.New("kind_unsupported")
	// ErrInvalidRecord wraps field validation failures.
	ErrInvalidRecord = errors.New("invalid_record")
	// ErrUndoUnavailable indicates there is no further history to rewind.
	ErrUndoUnavailable = undo.ErrUndoUnavailable
	// ErrRedoUnavailable indicates there is no further forward history.
	ErrRedoUnavailable = undo.ErrRedoUnavailable
)

// DefaultHistoryLimit is the number of inventory snapshots kept, which
// allows ten undo steps.
const DefaultHistoryLimit = 11

// HistoryStatus reports how far the history can move in either direction.
type HistoryStatus struct {
	CanUndo   bool `json:"canUndo"`
	CanRedo   bool `json:"canRedo"`
	UndoSteps int  `json:"undoSteps"`
	RedoSteps int  `json:"redoSteps"`
}

// StatusOf summarises any undo store.
func StatusOf[T any](h *undo.Store[T]) HistoryStatus {
	undoSteps, redoSteps := h.Depth()
	return HistoryStatus{
		CanUndo:   undoSteps > 0,
		CanRedo:   redoSteps > 0,
		UndoSteps: undoSteps,
		RedoSteps: redoSteps,
	}
}

// OverviewStats summarizes inventory contents for the overview page.
type OverviewStats struct {
	Kinds  []KindOverview `json:"kinds"`
	TagTop []TagCount     `json:"tag_top"`
	Recent []RecentRecord `json:"recent"`
	// PlantingArea sums boundary areas of planting sites in square degrees.
	PlantingArea float64 `json:"planting_area"`
}

// KindOverview aggregates counts and freshness for a record kind.
type KindOverview struct {
	Kind        Kind      `json:"kind"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// TagCount captures how frequently a tag appears.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// RecentRecord highlights the latest updates across all kinds.
type RecentRecord struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Inventory holds every record in memory. Each mutation commits a snapshot
// of the whole catalog to a bounded history that Undo and Redo walk.
type Inventory struct {
	mu      sync.RWMutex
	records Catalog
	history *undo.Store[Catalog]
	now     func() time.Time

	// revision increases on every change of records, including undo and redo.
	revision uint64
}

// NewInventory constructs an empty inventory. A non-positive limit uses
// DefaultHistoryLimit.
func NewInventory(historyLimit int) *Inventory {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	records := make(Catalog)
	return &Inventory{
		records: records,
		history: undo.NewWithValue(records, undo.WithLimit(historyLimit)),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GenerateID creates a unique identifier prefixed with the record kind.
func GenerateID(kind Kind) string {
	return fmt.Sprintf("%s-%s", kind, uuid.NewString())
}

func (s *Inventory) commitLocked() {
	s.history.Write(s.records)
	s.revision++
}

// Revision returns a counter that changes whenever the records change.
func (s *Inventory) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// List returns ordered records of a kind.
func (s *Inventory) List(kind Kind) ([]Record, error) {
	if !kind.Valid() {
		return nil, ErrKindUnsupported
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := cloneRecords(s.records[kind])
	if out == nil {
		out = []Record{}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// ListPaged returns one page of ordered records and the total count.
func (s *Inventory) ListPaged(kind Kind, page, pageSize int) ([]Record, int, error) {
	all, err := s.List(kind)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	if pageSize <= 0 {
		return all, total, nil
	}
	start := (page - 1) * pageSize
	if start < 0 {
		start = 0
	}
	if start >= total {
		return []Record{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// Get retrieves a record by ID.
func (s *Inventory) Get(kind Kind, id string) (Record, error) {
	if !kind.Valid() {
		return Record{}, ErrKindUnsupported
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records[kind] {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return Record{}, ErrRecordNotFound
}

// Create appends a new record.
func (s *Inventory) Create(kind Kind, record Record, actor string) (Record, error) {
	if !kind.Valid() {
		return Record{}, ErrKindUnsupported
	}
	record.Kind = kind
	record.Tags = normaliseStrings(record.Tags)
	if err := record.Validate(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = GenerateID(kind)
	record.CreatedAt = s.now()
	record.UpdatedAt = record.CreatedAt
	record.UpdatedBy = NormaliseActor(actor)
	record.Order = len(s.records[kind])
	s.records[kind] = append(s.records[kind], record.Clone())
	s.commitLocked()
	return record, nil
}

// Update replaces the editable fields of the record with matching ID.
// Identity, ordering and creation time are kept.
func (s *Inventory) Update(kind Kind, id string, updated Record, actor string) (Record, error) {
	if !kind.Valid() {
		return Record{}, ErrKindUnsupported
	}
	updated.Kind = kind
	updated.Tags = normaliseStrings(updated.Tags)
	if err := updated.Validate(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.records[kind]
	for i, existing := range items {
		if existing.ID != id {
			continue
		}
		updated.ID = existing.ID
		updated.Order = existing.Order
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = s.now()
		updated.UpdatedBy = NormaliseActor(actor)
		items[i] = updated.Clone()
		s.commitLocked()
		return updated, nil
	}
	return Record{}, ErrRecordNotFound
}

// Delete removes a record and compacts ordering.
func (s *Inventory) Delete(kind Kind, id string, actor string) error {
	if !kind.Valid() {
		return ErrKindUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.records[kind]
	for i, r := range items {
		if r.ID != id {
			continue
		}
		items = append(items[:i:i], items[i+1:]...)
		now := s.now()
		for idx := range items {
			if items[idx].Order != idx {
				items[idx].Order = idx
				items[idx].UpdatedAt = now
				items[idx].UpdatedBy = NormaliseActor(actor)
			}
		}
		s.records[kind] = items
		s.commitLocked()
		return nil
	}
	return ErrRecordNotFound
}

// Reorder sets the ordering from the provided IDs. Records not listed keep
// their relative order at the end.
func (s *Inventory) Reorder(kind Kind, orderedIDs []string, actor string) ([]Record, error) {
	if !kind.Valid() {
		return nil, ErrKindUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.records[kind]
	if len(items) == 0 {
		return []Record{}, nil
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	index := make(map[string]Record, len(items))
	for _, item := range items {
		index[item.ID] = item
	}

	result := make([]Record, 0, len(items))
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		if record, ok := index[id]; ok {
			seen[id] = struct{}{}
			result = append(result, record)
		}
	}
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		result = append(result, item)
	}
	now := s.now()
	for i := range result {
		result[i].Order = i
		result[i].UpdatedAt = now
		result[i].UpdatedBy = NormaliseActor(actor)
	}
	s.records[kind] = result
	s.commitLocked()
	return cloneRecords(result), nil
}

// ReplaceKinds overwrites every kind present in catalog as a single history
// step and returns the number of records stored per kind. Kinds absent from
// catalog are left alone.
func (s *Inventory) ReplaceKinds(catalog Catalog, actor string) (map[Kind]int, error) {
	prepared := make(Catalog, len(catalog))
	for kind, records := range catalog {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrKindUnsupported, kind)
		}
		normalised, err := s.prepareBatch(kind, records, 0, actor, true)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		prepared[kind] = normalised
	}
	counts := make(map[Kind]int, len(prepared))
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, records := range prepared {
		s.records[kind] = records
		counts[kind] = len(records)
	}
	if len(prepared) > 0 {
		s.commitLocked()
	}
	return counts, nil
}

// AppendKinds adds the records of every kind in catalog after the existing
// ones, with fresh IDs, as a single history step. It returns the number of
// records added per kind.
func (s *Inventory) AppendKinds(catalog Catalog, actor string) (map[Kind]int, error) {
	for kind := range catalog {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrKindUnsupported, kind)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prepared := make(Catalog, len(catalog))
	for kind, records := range catalog {
		added, err := s.prepareBatch(kind, records, len(s.records[kind]), actor, false)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		prepared[kind] = added
	}
	counts := make(map[Kind]int, len(prepared))
	for kind, added := range prepared {
		s.records[kind] = append(s.records[kind], added...)
		counts[kind] = len(added)
	}
	if len(prepared) > 0 {
		s.commitLocked()
	}
	return counts, nil
}

func (s *Inventory) prepareBatch(kind Kind, records []Record, start int, actor string, keepIDs bool) ([]Record, error) {
	now := s.now()
	out := make([]Record, len(records))
	for i, record := range records {
		record.Kind = kind
		record.Tags = normaliseStrings(record.Tags)
		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if !keepIDs || record.ID == "" {
			record.ID = GenerateID(kind)
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.CreatedAt = record.CreatedAt.UTC()
		record.UpdatedAt = now
		record.UpdatedBy = NormaliseActor(actor)
		record.Order = start + i
		out[i] = record.Clone()
	}
	return out, nil
}

// Catalog returns a deep copy of every record.
func (s *Inventory) Catalog() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Clone()
}

// Undo reverts the inventory to the previous snapshot.
func (s *Inventory) Undo() (HistoryStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, err := s.history.Undo()
	if err != nil {
		return StatusOf(s.history), err
	}
	s.records = snapshot.OrElse(make(Catalog))
	s.revision++
	return StatusOf(s.history), nil
}

// Redo reapplies the next snapshot from history.
func (s *Inventory) Redo() (HistoryStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, err := s.history.Redo()
	if err != nil {
		return StatusOf(s.history), err
	}
	s.records = snapshot.OrElse(make(Catalog))
	s.revision++
	return StatusOf(s.history), nil
}

// CanUndo reports whether history contains a previous snapshot.
func (s *Inventory) CanUndo() bool {
	return s.history.CanUndo()
}

// CanRedo reports whether history contains a forward snapshot.
func (s *Inventory) CanRedo() bool {
	return s.history.CanRedo()
}

// HistoryStatus returns the undo and redo steps currently available.
func (s *Inventory) HistoryStatus() HistoryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatusOf(s.history)
}

// Overview aggregates counts, tags, planting area and recents for dashboards.
func (s *Inventory) Overview() OverviewStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats OverviewStats
	tagCounts := make(map[string]int)
	recents := make([]RecentRecord, 0, 16)

	for _, kind := range AllKinds {
		records := s.records[kind]
		overview := KindOverview{Kind: kind, Count: len(records)}
		for _, r := range records {
			if r.UpdatedAt.After(overview.LastUpdated) {
				overview.LastUpdated = r.UpdatedAt
			}
			for _, tag := range r.Tags {
				normalised := strings.ToLower(strings.TrimSpace(tag))
				if normalised != "" {
					tagCounts[normalised]++
				}
			}
			if kind == KindPlantingSite {
				stats.PlantingArea += r.Boundary.Area()
			}
			recents = append(recents, RecentRecord{ID: r.ID, Kind: kind, Name: r.Name, UpdatedAt: r.UpdatedAt})
		}
		stats.Kinds = append(stats.Kinds, overview)
	}

	tagList := make([]TagCount, 0, len(tagCounts))
	for tag, count := range tagCounts {
		tagList = append(tagList, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(tagList, func(i, j int) bool {
		if tagList[i].Count == tagList[j].Count {
			return tagList[i].Tag < tagList[j].Tag
		}
		return tagList[i].Count > tagList[j].Count
	})
	if len(tagList) > 12 {
		tagList = tagList[:12]
	}
	stats.TagTop = tagList

	sort.SliceStable(recents, func(i, j int) bool {
		return recents[i].UpdatedAt.After(recents[j].UpdatedAt)
	})
	if len(recents) > 10 {
		recents = recents[:10]
	}
	stats.Recent = recents
	return stats
}

func normaliseStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
