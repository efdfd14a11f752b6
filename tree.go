package formsync

import (
	"github.com/ngx-vest-forms/formsync/fieldpath"
)

// Field is a lightweight registration record for one independently editable
// location in the model. The tree does not own field identity beyond the
// path; disabled fields are skipped by naive value computation but still
// contribute their last-known value when the tree is materialized.
type Field struct {
	Path     fieldpath.Path
	Disabled bool

	value    any
	hasValue bool
}

// FieldTree holds the registered fields of one form, keyed by canonical
// path string. It is not safe for concurrent use; the Coordinator guards it.
type FieldTree struct {
	fields map[string]*Field
	order  []string
}

// NewFieldTree returns an empty field tree.
func NewFieldTree() *FieldTree {
	return &FieldTree{
		fields: make(map[string]*Field),
	}
}

// Register adds a field at the given path if not already present and returns
// its registration record.
func (t *FieldTree) Register(path string) *Field {
	key := fieldpath.Parse(path).String()
	if f, ok := t.fields[key]; ok {
		return f
	}
	f := &Field{Path: fieldpath.Parse(path)}
	t.fields[key] = f
	t.order = append(t.order, key)
	return f
}

// Set stores the current value of a field, registering it on first use.
func (t *FieldTree) Set(path string, value any) {
	f := t.Register(path)
	f.value = value
	f.hasValue = true
}

// SetDisabled marks a field (or a whole registered group) disabled or
// enabled. Unknown paths register an empty field so the flag survives a
// later Set.
func (t *FieldTree) SetDisabled(path string, disabled bool) {
	t.Register(path).Disabled = disabled
}

// Value returns the last-known value of a field.
func (t *FieldTree) Value(path string) (any, bool) {
	f, ok := t.fields[fieldpath.Parse(path).String()]
	if !ok || !f.hasValue {
		return nil, false
	}
	return f.value, true
}

// Clear forgets a field's value but keeps its registration.
func (t *FieldTree) Clear(path string) {
	if f, ok := t.fields[fieldpath.Parse(path).String()]; ok {
		f.value = nil
		f.hasValue = false
	}
}

// Paths returns the canonical paths of all registered fields in
// registration order.
func (t *FieldTree) Paths() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of registered fields.
func (t *FieldTree) Len() int {
	return len(t.fields)
}

func (t *FieldTree) field(key string) *Field {
	return t.fields[key]
}
