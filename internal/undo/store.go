// Package undo keeps a linear history of values and lets callers step
// backward and forward through it.
//
// Every value that enters or leaves a Store is copied, so callers can mutate
// what they read without touching stored history:
//
//	form := undo.NewWithValue(record)
//	form.Write(edited)
//	if form.CanUndo() {
//		previous, _ := form.Undo()
//	}
//
// Writing after an undo discards the redo entries beyond the cursor.
package undo

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tiendc/go-deepcopy"
)

var (
	// ErrUndoUnavailable indicates the cursor is already at the oldest snapshot.
	ErrUndoUnavailable = errors.New("no undo steps available")
	// ErrRedoUnavailable indicates the cursor is already at the newest snapshot.
	ErrRedoUnavailable = errors.New("no redo steps available")
)

// Cloner is implemented by types that know how to deep copy themselves.
// A Store prefers Clone over reflection based copying when T implements it.
type Cloner[T any] interface {
	Clone() T
}

type config struct {
	limit  int
	copier any
}

// Option configures a Store.
type Option func(*config)

// WithLimit caps the number of snapshots kept. Writing past the cap evicts
// the oldest snapshots. Zero or a negative limit keeps everything.
func WithLimit(n int) Option {
	return func(c *config) {
		if n < 0 {
			n = 0
		}
		c.limit = n
	}
}

// WithCopier overrides how values are copied across the store boundary.
// Constructing a store whose value type is not T panics.
func WithCopier[T any](fn func(T) T) Option {
	return func(c *config) {
		c.copier = fn
	}
}

// Store records every written value as a snapshot and tracks a cursor into
// that history. The history is never empty and the cursor always points at
// a snapshot.
type Store[T any] struct {
	mu      sync.RWMutex
	history []Value[T]
	cursor  int
	limit   int
	copy    func(T) T
}

// New creates a store whose only snapshot is unset.
func New[T any](opts ...Option) *Store[T] {
	return newStore(None[T](), opts)
}

// NewWithValue creates a store seeded with a copy of initial.
func NewWithValue[T any](initial T, opts ...Option) *Store[T] {
	return newStore(Some(initial), opts)
}

func newStore[T any](initial Value[T], opts []Option) *Store[T] {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Store[T]{
		limit: cfg.limit,
		copy:  resolveCopier[T](cfg.copier),
	}
	s.history = []Value[T]{s.clone(initial)}
	return s
}

func resolveCopier[T any](custom any) func(T) T {
	if custom != nil {
		fn, ok := custom.(func(T) T)
		if !ok {
			panic(fmt.Sprintf("undo: copier %T does not match store of %T", custom, *new(T)))
		}
		if fn != nil {
			return fn
		}
	}
	var zero T
	if _, ok := any(zero).(Cloner[T]); ok {
		return func(v T) T { return any(v).(Cloner[T]).Clone() }
	}
	return deepCopy[T]
}

// deepCopy panics when T holds values that cannot be copied, such as
// channels or functions. Those types need WithCopier.
func deepCopy[T any](v T) T {
	var out T
	if err := deepcopy.Copy(&out, &v); err != nil {
		panic(fmt.Sprintf("undo: copy %T: %v", v, err))
	}
	return out
}

func (s *Store[T]) clone(v Value[T]) Value[T] {
	value, ok := v.Get()
	if !ok {
		return v
	}
	return Some(s.copy(value))
}

// Read returns a copy of the value at the cursor.
func (s *Store[T]) Read() Value[T] {
	s.mu.RLock()
	current := s.history[s.cursor]
	s.mu.RUnlock()
	return s.clone(current)
}

// Write appends a copy of v after the cursor and moves the cursor onto it.
// Snapshots that were redoable are discarded.
func (s *Store[T]) Write(v T) {
	next := Some(s.copy(v))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(next)
}

// Update calls fn with a copy of the current value and writes the result.
// fn runs without the store lock held, so Update is not atomic with respect
// to other writers of the same store.
func (s *Store[T]) Update(fn func(Value[T]) T) {
	s.Write(fn(s.Read()))
}

func (s *Store[T]) appendLocked(v Value[T]) {
	clear(s.history[s.cursor+1:])
	s.history = append(s.history[:s.cursor+1], v)
	if s.limit > 0 && len(s.history) > s.limit {
		excess := len(s.history) - s.limit
		s.history = append([]Value[T](nil), s.history[excess:]...)
	}
	s.cursor = len(s.history) - 1
}

// Undo moves the cursor back one snapshot and returns a copy of it. At the
// oldest snapshot it leaves the store unchanged and returns the current
// value with ErrUndoUnavailable.
func (s *Store[T]) Undo() (Value[T], error) {
	s.mu.Lock()
	if s.cursor == 0 {
		current := s.history[s.cursor]
		s.mu.Unlock()
		return s.clone(current), ErrUndoUnavailable
	}
	s.cursor--
	current := s.history[s.cursor]
	s.mu.Unlock()
	return s.clone(current), nil
}

// Redo moves the cursor forward one snapshot and returns a copy of it. At
// the newest snapshot it leaves the store unchanged and returns the current
// value with ErrRedoUnavailable.
func (s *Store[T]) Redo() (Value[T], error) {
	s.mu.Lock()
	if s.cursor >= len(s.history)-1 {
		current := s.history[s.cursor]
		s.mu.Unlock()
		return s.clone(current), ErrRedoUnavailable
	}
	s.cursor++
	current := s.history[s.cursor]
	s.mu.Unlock()
	return s.clone(current), nil
}

// CanUndo reports whether a snapshot precedes the cursor.
func (s *Store[T]) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor > 0
}

// CanRedo reports whether a snapshot follows the cursor.
func (s *Store[T]) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor < len(s.history)-1
}

// Depth returns the number of undo and redo steps currently available.
func (s *Store[T]) Depth() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, len(s.history) - 1 - s.cursor
}

// Len returns the number of snapshots held.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Cursor returns the index of the current snapshot.
func (s *Store[T]) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Limit returns the snapshot cap, or zero when history is unbounded.
func (s *Store[T]) Limit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limit
}

// Reset drops all history and reseeds the store with a copy of v.
func (s *Store[T]) Reset(v Value[T]) {
	seed := s.clone(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = []Value[T]{seed}
	s.cursor = 0
}
