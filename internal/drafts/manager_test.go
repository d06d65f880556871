package drafts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedbank/internal/models"
)

type recordingObserver struct {
	open []int
	ops  []string
}

func (o *recordingObserver) SessionsOpen(n int) { o.open = append(o.open, n) }
func (o *recordingObserver) HistoryOperation(scope, op string, ok bool) {
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	o.ops = append(o.ops, scope+"/"+op+"/"+result)
}

func newTestManager(t *testing.T) (*Manager, *models.Inventory, *recordingObserver) {
	t.Helper()
	inventory := models.NewInventory(0)
	observer := &recordingObserver{}
	manager := NewManager(inventory, Options{
		TTL:      time.Hour,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer: observer,
	})
	return manager, inventory, observer
}

func strptr(s string) *string { return &s }

func TestEditSessionUndoRedo(t *testing.T) {
	manager, inventory, observer := newTestManager(t)
	record, err := inventory.Create(models.KindAccession, models.Record{Name: "bugs"}, "tester")
	require.NoError(t, err)

	session, err := manager.Open(models.KindAccession, record.ID, "Tester")
	require.NoError(t, err)
	assert.Equal(t, "tester", session.Actor)
	assert.False(t, session.Status().CanUndo)

	_, err = session.Apply(Patch{Name: strptr("bunny")})
	require.NoError(t, err)
	_, err = session.Apply(Patch{Name: strptr("roadrunner")})
	require.NoError(t, err)

	previous, err := session.Undo()
	require.NoError(t, err)
	got, ok := previous.Get()
	require.True(t, ok)
	assert.Equal(t, "bunny", got.Name)

	next, err := session.Redo()
	require.NoError(t, err)
	got, _ = next.Get()
	assert.Equal(t, "roadrunner", got.Name)

	_, err = session.Redo()
	assert.True(t, errors.Is(err, models.ErrRedoUnavailable))
	assert.Equal(t, []string{"session/undo/ok", "session/redo/ok", "session/redo/unavailable"}, observer.ops)

	stored, err := inventory.Get(models.KindAccession, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "bugs", stored.Name, "edits stay in the session until commit")
}

func TestEditAfterUndoDropsRedo(t *testing.T) {
	manager, inventory, _ := newTestManager(t)
	record, err := inventory.Create(models.KindBatch, models.Record{Name: "flat 1"}, "tester")
	require.NoError(t, err)
	session, err := manager.Open(models.KindBatch, record.ID, "")
	require.NoError(t, err)

	_, err = session.Apply(Patch{Name: strptr("flat 2")})
	require.NoError(t, err)
	_, err = session.Undo()
	require.NoError(t, err)
	_, err = session.Apply(Patch{Description: strptr("moved to shade house")})
	require.NoError(t, err)

	status := session.Status()
	assert.False(t, status.CanRedo)
	assert.Equal(t, 1, status.UndoSteps)
}

func TestNewRecordSessionStartsUnset(t *testing.T) {
	manager, inventory, _ := newTestManager(t)
	session, err := manager.OpenNew(models.KindObservation, "tester")
	require.NoError(t, err)

	assert.False(t, session.Current().IsSet())
	_, err = manager.Commit(context.Background(), session.ID)
	assert.True(t, errors.Is(err, ErrNothingToCommit))

	_, err = session.Apply(Patch{Name: strptr("germination check")})
	require.NoError(t, err)
	undone, err := session.Undo()
	require.NoError(t, err)
	assert.False(t, undone.IsSet())
	assert.False(t, session.Status().CanUndo)

	_, err = session.Redo()
	require.NoError(t, err)
	saved, err := manager.Commit(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.RecordID(), saved.ID)
	assert.False(t, session.Status().CanUndo, "commit reseeds history")

	stored, err := inventory.Get(models.KindObservation, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "germination check", stored.Name)
}

func TestCommitUpdatesExistingRecord(t *testing.T) {
	manager, inventory, _ := newTestManager(t)
	record, err := inventory.Create(models.KindAccession, models.Record{Name: "lot 4", Attributes: map[string]string{"species": "koa"}}, "tester")
	require.NoError(t, err)
	session, err := manager.Open(models.KindAccession, record.ID, "editor")
	require.NoError(t, err)

	qty := 120.0
	_, err = session.Apply(Patch{Quantity: &qty, Attributes: map[string]*string{"species": nil, "source": strptr("Kona")}})
	require.NoError(t, err)

	saved, err := manager.Commit(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, saved.ID)
	require.NotNil(t, saved.Quantity)
	assert.Equal(t, 120.0, *saved.Quantity)
	assert.Equal(t, map[string]string{"source": "Kona"}, saved.Attributes)
	assert.Equal(t, "editor", saved.UpdatedBy)
}

func TestCommitRejectsInvalidValue(t *testing.T) {
	manager, inventory, _ := newTestManager(t)
	record, err := inventory.Create(models.KindAccession, models.Record{Name: "lot"}, "tester")
	require.NoError(t, err)
	session, err := manager.Open(models.KindAccession, record.ID, "")
	require.NoError(t, err)

	_, err = session.Apply(Patch{Name: strptr("")})
	require.NoError(t, err)
	_, err = manager.Commit(context.Background(), session.ID)
	assert.True(t, errors.Is(err, models.ErrInvalidRecord))
	assert.True(t, session.Status().CanUndo, "failed commit keeps history")
}

func TestCommitHonoursContext(t *testing.T) {
	manager, _, _ := newTestManager(t)
	session, err := manager.OpenNew(models.KindBatch, "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = manager.Commit(ctx, session.ID)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEmptyPatchRejected(t *testing.T) {
	manager, _, _ := newTestManager(t)
	session, err := manager.OpenNew(models.KindBatch, "")
	require.NoError(t, err)

	_, err = session.Apply(Patch{})
	assert.True(t, errors.Is(err, ErrEmptyPatch))
	assert.False(t, session.Status().CanUndo)
}

func TestOpenUnknownRecord(t *testing.T) {
	manager, _, _ := newTestManager(t)
	_, err := manager.Open(models.KindBatch, "missing", "")
	assert.True(t, errors.Is(err, models.ErrRecordNotFound))

	_, err = manager.OpenNew(models.Kind("seeds"), "")
	assert.True(t, errors.Is(err, models.ErrKindUnsupported))
}

func TestCloseAndReap(t *testing.T) {
	manager, _, observer := newTestManager(t)
	first, err := manager.OpenNew(models.KindBatch, "")
	require.NoError(t, err)
	second, err := manager.OpenNew(models.KindBatch, "")
	require.NoError(t, err)
	assert.Len(t, manager.List(), 2)

	require.NoError(t, manager.Close(first.ID))
	assert.True(t, errors.Is(manager.Close(first.ID), ErrSessionNotFound))
	_, err = manager.Get(first.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	assert.Equal(t, 0, manager.Reap(time.Now()))
	assert.Equal(t, 1, manager.Reap(time.Now().Add(2*time.Hour)))
	_, err = manager.Get(second.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.Equal(t, []int{1, 2, 1, 0}, observer.open)
}

func TestRunStopsWithContext(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx, time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestSessionHistoryLimit(t *testing.T) {
	inventory := models.NewInventory(0)
	manager := NewManager(inventory, Options{HistoryLimit: 2})
	session, err := manager.OpenNew(models.KindBatch, "")
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		_, err := session.Apply(Patch{Name: strptr(name)})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, session.Status().UndoSteps)
}

func TestReplaceWritesWholeRecord(t *testing.T) {
	manager, inventory, _ := newTestManager(t)
	_, err := inventory.Create(models.KindBatch, models.Record{Name: "flat 1"}, "")
	require.NoError(t, err)
	record, err := inventory.Create(models.KindBatch, models.Record{Name: "flat 2", Tags: []string{"misted"}}, "tester")
	require.NoError(t, err)

	session, err := manager.Open(models.KindBatch, record.ID, "tester")
	require.NoError(t, err)
	_, err = session.Apply(Patch{Name: strptr("flat 2b")})
	require.NoError(t, err)
	_, err = session.Undo()
	require.NoError(t, err)
	require.True(t, session.Status().CanRedo)

	replaced, err := session.Replace(models.Record{
		ID:        "someone-else",
		Kind:      models.KindObservation,
		Name:      "tray 9",
		Order:     7,
		CreatedAt: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, record.ID, replaced.ID)
	assert.Equal(t, models.KindBatch, replaced.Kind)
	assert.Equal(t, record.Order, replaced.Order)
	assert.True(t, replaced.CreatedAt.Equal(record.CreatedAt))
	assert.Equal(t, "tray 9", replaced.Name)
	assert.Empty(t, replaced.Tags, "a literal write does not merge with the previous value")
	assert.False(t, session.Status().CanRedo, "writing after undo drops the redo branch")

	previous, err := session.Undo()
	require.NoError(t, err)
	got, ok := previous.Get()
	require.True(t, ok)
	assert.Equal(t, "flat 2", got.Name)
}
