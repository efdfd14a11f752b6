package formsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	formErrors "github.com/ngx-vest-forms/formsync/errors"
)

func TestFieldTree_RegisterAndSet(t *testing.T) {
	tree := NewFieldTree()

	f := tree.Register("user.firstName")
	require.NotNil(t, f)
	assert.Equal(t, 1, tree.Len())

	// Registering the same path again returns the same record.
	again := tree.Register("user.firstName")
	assert.Same(t, f, again)
	assert.Equal(t, 1, tree.Len())

	tree.Set("user.firstName", "Ada")
	v, ok := tree.Value("user.firstName")
	require.True(t, ok)
	assert.Equal(t, "Ada", v)

	// Equivalent spellings share one registration.
	tree.Set("addresses[0].street", "Main St")
	tree.Set("addresses.0.street", "Side St")
	assert.Equal(t, 2, tree.Len())
	v, ok = tree.Value("addresses[0].street")
	require.True(t, ok)
	assert.Equal(t, "Side St", v)
}

func TestFieldTree_ClearKeepsRegistration(t *testing.T) {
	tree := NewFieldTree()
	tree.Set("email", "a@b.c")

	tree.Clear("email")
	_, ok := tree.Value("email")
	assert.False(t, ok)
	assert.Equal(t, 1, tree.Len())
}

func TestFieldTree_PathsInRegistrationOrder(t *testing.T) {
	tree := NewFieldTree()
	tree.Set("b", 2)
	tree.Set("a", 1)
	tree.Set("c", 3)

	assert.Equal(t, []string{"b", "a", "c"}, tree.Paths())
}

func TestMaterialize_EmptyTree(t *testing.T) {
	out, err := Materialize(NewFieldTree())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out)

	out, err = Materialize(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out)
}

func TestMaterialize_NestedPaths(t *testing.T) {
	tree := NewFieldTree()
	tree.Set("user.firstName", "Ada")
	tree.Set("user.lastName", "Lovelace")
	tree.Set("addresses[0].street", "Main St")
	tree.Set("addresses[1].street", "Side St")
	tree.Set("age", 36)

	out, err := Materialize(tree)
	require.NoError(t, err)

	want := map[string]any{
		"user": map[string]any{
			"firstName": "Ada",
			"lastName":  "Lovelace",
		},
		"addresses": []any{
			map[string]any{"street": "Main St"},
			map[string]any{"street": "Side St"},
		},
		"age": 36,
	}
	assert.Equal(t, want, out)
}

func TestMaterialize_IncludesDisabledFields(t *testing.T) {
	tree := NewFieldTree()
	tree.Set("user.firstName", "Ada")
	tree.Set("user.nickname", "Countess")
	tree.SetDisabled("user.nickname", true)

	out, err := Materialize(tree)
	require.NoError(t, err)

	user, ok := out["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", user["firstName"])
	assert.Equal(t, "Countess", user["nickname"])
}

func TestMaterialize_DisabledFieldWithoutValueOmitted(t *testing.T) {
	tree := NewFieldTree()
	tree.SetDisabled("user.nickname", true)
	tree.Set("user.firstName", "Ada")

	out, err := Materialize(tree)
	require.NoError(t, err)

	user := out["user"].(map[string]any)
	_, present := user["nickname"]
	assert.False(t, present)
}

func TestMaterialize_SnapshotIsolation(t *testing.T) {
	address := map[string]any{"street": "Main St"}
	tags := []any{"a", "b"}
	when := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

	tree := NewFieldTree()
	tree.Set("address", address)
	tree.Set("tags", tags)
	tree.Set("when", when)

	out, err := Materialize(tree)
	require.NoError(t, err)

	// Mutating the snapshot must not reach the field tree.
	out["address"].(map[string]any)["street"] = "Changed"
	out["tags"].([]any)[0] = "changed"

	v, _ := tree.Value("address")
	assert.Equal(t, "Main St", v.(map[string]any)["street"])
	v, _ = tree.Value("tags")
	assert.Equal(t, "a", v.([]any)[0])
	assert.Equal(t, when, out["when"])

	// And the other direction: mutating the source after the snapshot.
	address["street"] = "Later"
	assert.Equal(t, "Changed", out["address"].(map[string]any)["street"])
}

func TestMaterialize_NonCloneableValueFails(t *testing.T) {
	tree := NewFieldTree()
	tree.Set("bad", make(chan int))

	_, err := Materialize(tree)
	require.Error(t, err)

	var formErr *formErrors.FormError
	require.ErrorAs(t, err, &formErr)
	assert.Equal(t, formErrors.ErrCodeCloneFailure, formErr.Code)
	assert.Equal(t, formErrors.OpMaterialize, formErr.Op)
	assert.Contains(t, err.Error(), "bad")
}

func TestMaterialize_DisabledGroupOverlaysEnabledChild(t *testing.T) {
	tree := NewFieldTree()
	tree.Set("prefs.theme", "light")
	tree.Set("prefs", map[string]any{"theme": "dark", "lang": "en"})
	tree.SetDisabled("prefs", true)

	out, err := Materialize(tree)
	require.NoError(t, err)

	// The disabled group's last-known value wins over the enabled leaf
	// because disabled overlays run second.
	prefs := out["prefs"].(map[string]any)
	assert.Equal(t, "dark", prefs["theme"])
	assert.Equal(t, "en", prefs["lang"])
}
