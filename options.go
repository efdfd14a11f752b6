package formsync

import (
	"log/slog"
	"time"
)

// DefaultDebounceInterval is the debounce window applied to field
// validations when no explicit interval is configured.
const DefaultDebounceInterval = 300 * time.Millisecond

type coordinatorOptions struct {
	debounce time.Duration
	validate ValidateFunc
	merge    MergeOptions
	logger   *slog.Logger
	metrics  MetricsCollector
	store    DraftStore
	formID   string
}

// Option implements the functional options pattern for NewCoordinator.
type Option interface {
	apply(*coordinatorOptions)
}

type optionFunc func(*coordinatorOptions)

func (f optionFunc) apply(o *coordinatorOptions) { f(o) }

// WithDebounceInterval sets the per-field validation debounce window.
// Non-positive values validate on the next timer tick without delay.
func WithDebounceInterval(d time.Duration) Option {
	return optionFunc(func(o *coordinatorOptions) { o.debounce = d })
}

// WithValidateFunc sets the caller-supplied validation routine. Without one,
// the coordinator tracks values but every submit succeeds vacuously.
func WithValidateFunc(v ValidateFunc) Option {
	return optionFunc(func(o *coordinatorOptions) { o.validate = v })
}

// WithMergeOptions configures how external updates reconcile against local
// edits.
func WithMergeOptions(m MergeOptions) Option {
	return optionFunc(func(o *coordinatorOptions) { o.merge = m })
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(o *coordinatorOptions) { o.logger = logger })
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return optionFunc(func(o *coordinatorOptions) { o.metrics = mc })
}

// WithAutosave persists every published model value to the store under the
// given form ID. Saves are best-effort: failures are logged, never surfaced
// to the edit that triggered them.
func WithAutosave(store DraftStore, formID string) Option {
	return optionFunc(func(o *coordinatorOptions) {
		o.store = store
		o.formID = formID
	})
}
