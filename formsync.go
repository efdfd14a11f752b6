// Package formsync keeps a single structured model value consistent with a
// tree of independently editable fields, while running debounced asynchronous
// validation and reconciling externally sourced updates against in-flight
// local edits.
//
// The package is organized around four collaborators: the fieldpath package
// addresses locations inside the model, the materializer produces one
// consistent snapshot of the field tree (disabled fields included), the
// validation scheduler debounces and supersedes per-field validation runs,
// and the reconcile engine merges external updates against local edits with
// explicit conflict resolution. The Coordinator owns the authoritative model
// value and is the single read/write surface external callers use.
package formsync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ModelValue is an arbitrary tree of nested maps, slices, and scalar leaves.
// No fixed schema is assumed; shape is whatever the caller's fields describe.
type ModelValue = map[string]any

// RootFormKey is the conventional result key under which validation routines
// report form-level (cross-field) issues.
const RootFormKey = "rootForm"

// ValidationOutcome is what a validation routine reports for one run. Both
// maps are keyed by field path; a routine commonly reports the validated
// field itself plus RootFormKey.
type ValidationOutcome struct {
	Errors   map[string][]string
	Warnings map[string][]string
}

// ValidateFunc is the caller-supplied validation routine. The coordinator is
// agnostic to how it is authored: it may run any number of synchronous or
// asynchronous checks before returning. fieldPath is the path that triggered
// the run, or empty for a whole-model run. A returned error (or panic) is
// converted into a single synthetic error entry for the field; it is never
// retried automatically.
type ValidateFunc func(ctx context.Context, model ModelValue, fieldPath string) (ValidationOutcome, error)

// Result is the consolidated validation state across all fields. Only the
// most recently requested run for a field ever contributes to it.
type Result struct {
	Errors        map[string][]string
	Warnings      map[string][]string
	PendingFields map[string]struct{}
}

// Valid reports whether no field currently has errors.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Pending reports whether any field has a scheduled or running validation.
func (r Result) Pending() bool {
	return len(r.PendingFields) > 0
}

// FieldErrors returns the error messages for one field path, or nil.
func (r Result) FieldErrors(path string) []string {
	return r.Errors[path]
}

// SubmitError carries the aggregated validation error map when Submit finds
// the model invalid. It is a structured verdict, not a crash.
type SubmitError struct {
	Errors map[string][]string
}

func (e *SubmitError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("submit rejected: %d field(s) invalid: %s", len(fields), strings.Join(fields, ", "))
}

// Draft is a persisted snapshot of a form's model value.
type Draft struct {
	FormID   string
	Revision int64
	Model    ModelValue
	SavedAt  time.Time
}

// DraftStore persists model snapshots so unsaved work survives restarts.
// Implementations can use any storage backend; see storage/sqlite.
type DraftStore interface {
	// Save persists a snapshot and returns its revision, which increases
	// monotonically per form
	Save(ctx context.Context, formID string, model ModelValue) (int64, error)

	// Latest returns the most recent draft for a form, or nil if none exists
	Latest(ctx context.Context, formID string) (*Draft, error)

	// List returns drafts for a form, newest first, up to limit (0 = all)
	List(ctx context.Context, formID string, limit int) ([]*Draft, error)

	// Delete removes all drafts for a form
	Delete(ctx context.Context, formID string) error

	// Close closes the store and releases resources
	Close() error
}
