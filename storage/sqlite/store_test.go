package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngx-vest-forms/formsync"
)

func newTestStore(t *testing.T, config *Config) *Store {
	t.Helper()
	if config == nil {
		config = DefaultConfig(filepath.Join(t.TempDir(), "drafts.db"))
	}
	store, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)
}

func TestStore_SaveAssignsMonotonicRevisions(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	rev1, err := store.Save(ctx, "form-1", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	rev2, err := store.Save(ctx, "form-1", map[string]any{"name": "Ada L."})
	require.NoError(t, err)
	other, err := store.Save(ctx, "form-2", map[string]any{"name": "Grace"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), rev1)
	assert.Equal(t, int64(2), rev2)
	assert.Equal(t, int64(1), other, "revisions count per form")
}

func TestStore_SaveRequiresFormID(t *testing.T) {
	store := newTestStore(t, nil)
	_, err := store.Save(context.Background(), "", map[string]any{})
	assert.Error(t, err)
}

func TestStore_Latest(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	draft, err := store.Latest(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, draft)

	_, err = store.Save(ctx, "form-1", map[string]any{"step": 1.0})
	require.NoError(t, err)
	_, err = store.Save(ctx, "form-1", map[string]any{
		"step": 2.0,
		"user": map[string]any{"name": "Ada"},
		"tags": []any{"a", "b"},
	})
	require.NoError(t, err)

	draft, err = store.Latest(ctx, "form-1")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "form-1", draft.FormID)
	assert.Equal(t, int64(2), draft.Revision)
	assert.False(t, draft.SavedAt.IsZero())
	assert.Equal(t, 2.0, draft.Model["step"])
	assert.Equal(t, "Ada", draft.Model["user"].(map[string]any)["name"])
	assert.Equal(t, []any{"a", "b"}, draft.Model["tags"])
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := store.Save(ctx, "form-1", map[string]any{"step": float64(i)})
		require.NoError(t, err)
	}

	drafts, err := store.List(ctx, "form-1", 0)
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	assert.Equal(t, int64(3), drafts[0].Revision)
	assert.Equal(t, int64(1), drafts[2].Revision)

	limited, err := store.List(ctx, "form-1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(3), limited[0].Revision)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	_, err := store.Save(ctx, "form-1", map[string]any{})
	require.NoError(t, err)
	_, err = store.Save(ctx, "form-2", map[string]any{})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "form-1"))

	draft, err := store.Latest(ctx, "form-1")
	require.NoError(t, err)
	assert.Nil(t, draft)

	draft, err = store.Latest(ctx, "form-2")
	require.NoError(t, err)
	assert.NotNil(t, draft, "other forms are untouched")
}

func TestStore_KeepRevisionsPrunesOldDrafts(t *testing.T) {
	config := DefaultConfig(filepath.Join(t.TempDir(), "drafts.db"))
	config.KeepRevisions = 2
	store := newTestStore(t, config)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := store.Save(ctx, "form-1", map[string]any{"step": float64(i)})
		require.NoError(t, err)
	}

	drafts, err := store.List(ctx, "form-1", 0)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, int64(5), drafts[0].Revision)
	assert.Equal(t, int64(4), drafts[1].Revision)

	// Revision numbering keeps counting past pruned rows.
	rev, err := store.Save(ctx, "form-1", map[string]any{"step": 6.0})
	require.NoError(t, err)
	assert.Equal(t, int64(6), rev)
}

func TestStore_ClosedStoreRejectsOperations(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	ctx := context.Background()
	_, err := store.Save(ctx, "f", map[string]any{})
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.Latest(ctx, "f")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.List(ctx, "f", 0)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Delete(ctx, "f"), ErrStoreClosed)
}

func TestStore_WorksAsCoordinatorAutosaveTarget(t *testing.T) {
	store := newTestStore(t, nil)

	c, err := formsync.NewCoordinator(map[string]any{},
		formsync.WithAutosave(store, "profile"))
	require.NoError(t, err)

	require.NoError(t, c.SetField("user.name", "Ada"))
	require.NoError(t, c.SetField("user.name", "Ada L."))

	drafts, err := store.List(context.Background(), "profile", 0)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "Ada L.",
		drafts[0].Model["user"].(map[string]any)["name"])

	// Coordinator.Close closes the store it owns.
	require.NoError(t, c.Close())
	_, err = store.Save(context.Background(), "profile", map[string]any{})
	assert.ErrorIs(t, err, ErrStoreClosed)
}
