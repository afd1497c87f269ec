package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/docstore-service/events"
	"github.com/yashrajoria/docstore-service/models"
	"github.com/yashrajoria/docstore-service/repository"
	"github.com/yashrajoria/docstore-service/store"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []events.Change
}

func (n *recordingNotifier) Notify(_ context.Context, change events.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

func (n *recordingNotifier) actions() []events.Action {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.Action, 0, len(n.changes))
	for _, c := range n.changes {
		out = append(out, c.Action)
	}
	return out
}

func newProductRepo(t *testing.T) (*repository.DocumentRepository, *store.MemoryBackend, *recordingNotifier) {
	t.Helper()
	backend := store.NewMemoryBackend()
	notifier := &recordingNotifier{}
	t.Cleanup(func() {
		assert.Zero(t, backend.OpenSessions(), "sessions leaked")
	})
	return repository.NewDocumentRepository(backend, models.KindProduct, notifier), backend, notifier
}

func widget() models.Document {
	return models.Document{"sku": "p1", "description": "Widget", "price": 9.99}
}

func TestDocumentRepository_ReadAfterWrite(t *testing.T) {
	repo, _, notifier := newProductRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, widget())
	require.NoError(t, err)
	assert.Equal(t, "p1", id)

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sku":"p1","description":"Widget","price":9.99}`, string(got))
	assert.Equal(t, []events.Action{events.ActionCreated}, notifier.actions())
}

func TestDocumentRepository_CreateOverwrites(t *testing.T) {
	repo, _, _ := newProductRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, widget())
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.Document{"sku": "p1", "description": "Gadget"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sku":"p1","description":"Gadget"}`, string(got))
}

func TestDocumentRepository_CreateRequiresID(t *testing.T) {
	repo, _, notifier := newProductRepo(t)

	for _, doc := range []models.Document{
		{"description": "no sku"},
		{"sku": ""},
		{"sku": 42},
		{"sku": nil},
	} {
		_, err := repo.Create(context.Background(), doc)
		assert.ErrorIs(t, err, repository.ErrValidation)
	}
	assert.Empty(t, notifier.actions())
}

func TestDocumentRepository_GetMissing(t *testing.T) {
	repo, _, _ := newProductRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualError(t, err, "SKU nope not found")
}

func TestDocumentRepository_GetEmptyDocumentIsNotMissing(t *testing.T) {
	backend := store.NewMemoryBackend()
	repo := repository.NewDocumentRepository(backend, models.KindUser, nil)
	ctx := context.Background()

	sess, err := backend.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Set(ctx, models.KindUser.Key("u0"), store.RootPath, map[string]any{}))
	require.NoError(t, sess.Close())

	got, err := repo.Get(ctx, "u0")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))
}

func TestDocumentRepository_DeleteThenRead(t *testing.T) {
	repo, _, notifier := newProductRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, widget())
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "p1"))

	_, err = repo.Get(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = repo.Delete(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualError(t, err, "SKU p1 not found")
	assert.Equal(t, []events.Action{events.ActionCreated, events.ActionDeleted}, notifier.actions())
}

func TestDocumentRepository_UpdateFields(t *testing.T) {
	repo, _, _ := newProductRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, widget())
	require.NoError(t, err)

	err = repo.Update(ctx, "p1", map[string]any{"price": 12.50, "color": "red", "sku": "p1"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sku":"p1","description":"Widget","price":12.5,"color":"red"}`, string(got))
}

func TestDocumentRepository_UpdateFailsOnAnyField(t *testing.T) {
	fields := map[string]any{"a": 1, "b": "two", "c": true, "d": []any{"x"}}

	for k := 1; k <= len(fields); k++ {
		t.Run(fmt.Sprintf("op %d fails", k), func(t *testing.T) {
			repo, backend, notifier := newProductRepo(t)
			ctx := context.Background()
			_, err := repo.Create(ctx, widget())
			require.NoError(t, err)

			backend.FailBatchOp(k)
			err = repo.Update(ctx, "p1", fields)

			require.Error(t, err)
			assert.ErrorIs(t, err, store.ErrWriteIncomplete)
			assert.EqualError(t, err, "SKU p1 not fully updated")
			assert.Equal(t, []events.Action{events.ActionCreated}, notifier.actions())
		})
	}
}

func TestDocumentRepository_UpdateAllAcknowledged(t *testing.T) {
	repo, backend, _ := newProductRepo(t)
	ctx := context.Background()
	_, err := repo.Create(ctx, widget())
	require.NoError(t, err)

	// Injection past the last operation leaves every write acknowledged.
	backend.FailBatchOp(5)
	assert.NoError(t, repo.Update(ctx, "p1", map[string]any{"a": 1, "b": 2, "c": 3, "d": 4}))
}

func TestDocumentRepository_UpdateEmptyFieldMap(t *testing.T) {
	repo, _, notifier := newProductRepo(t)
	ctx := context.Background()

	err := repo.Update(ctx, "p1", map[string]any{})
	assert.ErrorIs(t, err, store.ErrNotFound, "empty update of a missing document")

	_, err = repo.Create(ctx, widget())
	require.NoError(t, err)
	assert.NoError(t, repo.Update(ctx, "p1", map[string]any{}), "empty update is vacuously acknowledged")
	assert.Equal(t, []events.Action{events.ActionCreated, events.ActionUpdated}, notifier.actions())
}

func TestDocumentRepository_UpdateMissingDocument(t *testing.T) {
	repo, _, _ := newProductRepo(t)

	err := repo.Update(context.Background(), "ghost", map[string]any{"price": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualError(t, err, "SKU ghost not found")
}

func TestDocumentRepository_UpdateRejectsBadFields(t *testing.T) {
	repo, _, _ := newProductRepo(t)
	ctx := context.Background()
	_, err := repo.Create(ctx, widget())
	require.NoError(t, err)

	for _, fields := range []map[string]any{
		{"": 1},
		{"a.b": 1},
		{"$set": 1},
		{"items[0]": 1},
		{"_id": "x"},
		{"sku": "p2"},
		{"sku": 7},
	} {
		err := repo.Update(ctx, "p1", fields)
		assert.ErrorIs(t, err, repository.ErrValidation, "%v", fields)
	}

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sku":"p1","description":"Widget","price":9.99}`, string(got))
}

func TestDocumentRepository_TransportFailure(t *testing.T) {
	repo, backend, _ := newProductRepo(t)
	backend.FailConnect(errors.New("connection refused"))

	_, err := repo.Create(context.Background(), widget())
	assert.ErrorIs(t, err, store.ErrUnavailable)

	_, err = repo.Get(context.Background(), "p1")
	assert.ErrorIs(t, err, store.ErrUnavailable)

	err = repo.Delete(context.Background(), "p1")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Contains(t, err.Error(), "memory backend unavailable")
}
