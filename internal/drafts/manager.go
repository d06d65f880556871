// Package drafts tracks open edit sessions. Each session owns an undo
// history of the record being edited and writes the result back to the
// inventory on commit.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"seedbank/internal/models"
	"seedbank/internal/undo"
)

var (
	// ErrSessionNotFound indicates the session does not exist or has expired.
	ErrSessionNotFound = errors.New("session_not_found")
	// ErrNothingToCommit is returned when a new-record session has no value yet.
	ErrNothingToCommit = errors.New("nothing_to_commit")
	// ErrEmptyPatch is returned for patches that change nothing.
	ErrEmptyPatch = errors.New("empty_patch")
	// ErrNotBoundaryRecord indicates a boundary edit on a record kind without one.
	ErrNotBoundaryRecord = errors.New("not_boundary_record")
	// ErrVertexOutOfRange indicates a vertex index outside the outline.
	ErrVertexOutOfRange = errors.New("vertex_out_of_range")
)

// DefaultTTL is how long an idle session survives.
const DefaultTTL = 2 * time.Hour

// Inventory is the record store sessions read from and commit to.
type Inventory interface {
	Get(kind models.Kind, id string) (models.Record, error)
	Create(kind models.Kind, record models.Record, actor string) (models.Record, error)
	Update(kind models.Kind, id string, record models.Record, actor string) (models.Record, error)
}

// Observer receives session and history events, typically for metrics.
type Observer interface {
	SessionsOpen(n int)
	HistoryOperation(scope, op string, ok bool)
}

type nopObserver struct{}

func (nopObserver) SessionsOpen(int)                      {}
func (nopObserver) HistoryOperation(string, string, bool) {}

// Options configures a Manager.
type Options struct {
	TTL time.Duration
	// HistoryLimit caps snapshots per session. Zero keeps every edit.
	HistoryLimit int
	Logger       *slog.Logger
	Observer     Observer
}

// Manager tracks open sessions in memory.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	inventory Inventory
	ttl       time.Duration
	limit     int
	logger    *slog.Logger
	observer  Observer
	now       func() time.Time
}

// NewManager constructs a session manager over inventory.
func NewManager(inventory Inventory, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		inventory: inventory,
		ttl:       opts.TTL,
		limit:     opts.HistoryLimit,
		logger:    opts.Logger,
		observer:  opts.Observer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Open starts editing an existing record. The session history is seeded
// with the record as it is now.
func (m *Manager) Open(kind models.Kind, recordID, actor string) (*Session, error) {
	record, err := m.inventory.Get(kind, recordID)
	if err != nil {
		return nil, err
	}
	history := undo.NewWithValue(record, undo.WithLimit(m.limit))
	return m.register(kind, record.ID, actor, history), nil
}

// OpenNew starts a form for a record that does not exist yet. Its history
// begins unset.
func (m *Manager) OpenNew(kind models.Kind, actor string) (*Session, error) {
	if !kind.Valid() {
		return nil, models.ErrKindUnsupported
	}
	return m.register(kind, "", actor, undo.New[models.Record](undo.WithLimit(m.limit))), nil
}

func (m *Manager) register(kind models.Kind, recordID, actor string, history *undo.Store[models.Record]) *Session {
	session := &Session{
		ID:       uuid.NewString(),
		Kind:     kind,
		Actor:    models.NormaliseActor(actor),
		OpenedAt: m.now(),
		recordID: recordID,
		history:  history,
		observer: m.observer,
		now:      m.now,
	}
	session.touch()

	m.mu.Lock()
	m.sessions[session.ID] = session
	open := len(m.sessions)
	m.mu.Unlock()

	m.observer.SessionsOpen(open)
	m.logger.Debug("edit session opened", "session", session.ID, "kind", kind, "record", recordID, "actor", session.Actor)
	return session
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expired(session, m.now()) {
		m.Close(id)
		return nil, ErrSessionNotFound
	}
	session.touch()
	return session, nil
}

// List returns views of all sessions, oldest first.
func (m *Manager) List() []View {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	views := make([]View, len(sessions))
	for i, session := range sessions {
		views[i] = session.View()
	}
	sort.Slice(views, func(i, j int) bool { return views[i].OpenedAt.Before(views[j].OpenedAt) })
	return views
}

// Close discards a session and its history.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	open := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.observer.SessionsOpen(open)
	return nil
}

// Commit validates the session value and writes it to the inventory. A
// successful commit reseeds the session history with the saved record.
func (m *Manager) Commit(ctx context.Context, id string) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return models.Record{}, err
	}
	session, err := m.Get(id)
	if err != nil {
		return models.Record{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	current, ok := session.history.Read().Get()
	if !ok {
		return models.Record{}, ErrNothingToCommit
	}

	var saved models.Record
	if session.recordID == "" {
		saved, err = m.inventory.Create(session.Kind, current, session.Actor)
	} else {
		saved, err = m.inventory.Update(session.Kind, session.recordID, current, session.Actor)
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("commit session %s: %w", id, err)
	}

	session.recordID = saved.ID
	session.history.Reset(undo.Some(saved))
	m.logger.Info("edit session committed", "session", id, "kind", session.Kind, "record", saved.ID, "actor", session.Actor)
	return saved, nil
}

func (m *Manager) expired(session *Session, now time.Time) bool {
	return now.Sub(session.TouchedAt()) > m.ttl
}

// Reap closes sessions idle longer than the TTL and returns how many went.
func (m *Manager) Reap(now time.Time) int {
	m.mu.Lock()
	reaped := 0
	for id, session := range m.sessions {
		if m.expired(session, now) {
			delete(m.sessions, id)
			reaped++
		}
	}
	open := len(m.sessions)
	m.mu.Unlock()

	if reaped > 0 {
		m.observer.SessionsOpen(open)
		m.logger.Info("expired edit sessions reaped", "count", reaped, "open", open)
	}
	return reaped
}

// Run reaps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reap(m.now())
		}
	}
}
