package drafts

import (
	"sync"
	"sync/atomic"
	"time"

	"seedbank/internal/models"
	"seedbank/internal/undo"
)

// Session is one open edit form. Every edit becomes a snapshot in the
// session's own history, independent of the inventory history.
type Session struct {
	ID       string
	Kind     models.Kind
	Actor    string
	OpenedAt time.Time

	mu       sync.Mutex
	recordID string
	history  *undo.Store[models.Record]
	touched  atomic.Int64
	observer Observer
	now      func() time.Time
}

// View is the JSON representation of a session.
type View struct {
	ID        string                    `json:"id"`
	Kind      models.Kind               `json:"kind"`
	RecordID  string                    `json:"record_id,omitempty"`
	Actor     string                    `json:"actor"`
	OpenedAt  time.Time                 `json:"opened_at"`
	TouchedAt time.Time                 `json:"touched_at"`
	Current   undo.Value[models.Record] `json:"current"`
	History   models.HistoryStatus      `json:"history"`
}

func (s *Session) touch() {
	s.touched.Store(s.now().UnixNano())
}

// TouchedAt returns the time of the last access.
func (s *Session) TouchedAt() time.Time {
	return time.Unix(0, s.touched.Load()).UTC()
}

// RecordID returns the inventory record this session edits. It is empty
// until a new-record session is committed.
func (s *Session) RecordID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordID
}

// Current returns a copy of the value being edited.
func (s *Session) Current() undo.Value[models.Record] {
	s.touch()
	return s.history.Read()
}

// Status summarises the session history.
func (s *Session) Status() models.HistoryStatus {
	return models.StatusOf(s.history)
}

// View snapshots the session for display.
func (s *Session) View() View {
	return View{
		ID:        s.ID,
		Kind:      s.Kind,
		RecordID:  s.RecordID(),
		Actor:     s.Actor,
		OpenedAt:  s.OpenedAt,
		TouchedAt: s.TouchedAt(),
		Current:   s.history.Read(),
		History:   s.Status(),
	}
}

// Apply writes the patched current value as a new history entry.
func (s *Session) Apply(patch Patch) (models.Record, error) {
	if patch.Empty() {
		return models.Record{}, ErrEmptyPatch
	}
	return s.edit(func(current models.Record) (models.Record, error) {
		return patch.Apply(current), nil
	})
}

// Replace writes r as the next value, keeping the session's kind, record
// identity and the inventory-managed stamps of the current value.
func (s *Session) Replace(r models.Record) (models.Record, error) {
	return s.edit(func(current models.Record) (models.Record, error) {
		r.ID = current.ID
		r.Order = current.Order
		r.CreatedAt = current.CreatedAt
		r.UpdatedBy = current.UpdatedBy
		r.UpdatedAt = current.UpdatedAt
		return r, nil
	})
}

func (s *Session) edit(fn func(models.Record) (models.Record, error)) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	current := s.history.Read().OrElse(models.Record{ID: s.recordID})
	next, err := fn(current)
	if err != nil {
		return models.Record{}, err
	}
	next.Kind = s.Kind
	s.history.Write(next)
	return next.Clone(), nil
}

// Undo steps the session back one edit.
func (s *Session) Undo() (undo.Value[models.Record], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	value, err := s.history.Undo()
	s.observer.HistoryOperation("session", "undo", err == nil)
	return value, err
}

// Redo steps the session forward one edit.
func (s *Session) Redo() (undo.Value[models.Record], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	value, err := s.history.Redo()
	s.observer.HistoryOperation("session", "redo", err == nil)
	return value, err
}
