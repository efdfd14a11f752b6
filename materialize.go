package formsync

import (
	"fmt"

	"github.com/brunoga/deep"

	formErrors "github.com/ngx-vest-forms/formsync/errors"
	"github.com/ngx-vest-forms/formsync/fieldpath"
)

// Materialize produces one consistent snapshot of the field tree's current
// value. It walks the tree twice: a first pass mirrors the live values of
// enabled fields, a second pass overlays the last-known values of disabled
// fields so they still appear in the result, recursively for fully-disabled
// groups.
//
// Every container placed in the output is a structural copy, never a shared
// reference: later mutation of the returned value cannot reach the field
// tree and vice versa. Values that cannot be structurally copied (channels,
// functions) fail loudly rather than silently aliasing.
func Materialize(tree *FieldTree) (ModelValue, error) {
	out := make(map[string]any)
	if tree == nil {
		return out, nil
	}

	// Pass one: enabled fields only.
	for _, key := range tree.order {
		f := tree.fields[key]
		if f.Disabled || !f.hasValue {
			continue
		}
		copied, err := cloneValue(key, f.value)
		if err != nil {
			return nil, err
		}
		out = setInto(out, f.Path, copied)
	}

	// Pass two: overlay disabled fields with their last-known values.
	for _, key := range tree.order {
		f := tree.fields[key]
		if !f.Disabled || !f.hasValue {
			continue
		}
		copied, err := cloneValue(key, f.value)
		if err != nil {
			return nil, err
		}
		out = setInto(out, f.Path, copied)
	}

	return out, nil
}

// setInto writes through fieldpath.Set while keeping the root a map. A path
// whose first segment is an index cannot land in a map root and is dropped.
func setInto(out ModelValue, p fieldpath.Path, value any) ModelValue {
	if root, ok := fieldpath.Set(out, p, value).(map[string]any); ok {
		return root
	}
	return out
}

// cloneValue structurally copies one field value. deep.Copy preserves the
// concrete type and identity independence of maps, slices, structs,
// time.Time, *regexp.Regexp, and byte buffers; JSON round-tripping would not.
func cloneValue(field string, value any) (any, error) {
	copied, err := deep.Copy(value)
	if err != nil {
		return nil, formErrors.NewCloneError(formErrors.OpMaterialize,
			fmt.Errorf("field %s holds a non-cloneable value: %w", field, err))
	}
	return copied, nil
}
