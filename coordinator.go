package formsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brunoga/deep"

	formErrors "github.com/ngx-vest-forms/formsync/errors"
	"github.com/ngx-vest-forms/formsync/fieldpath"
)

// Coordinator owns the authoritative model value and the field tree. It is
// the single read/write surface external callers use: field edits flow in
// through SetField, external updates through ApplyExternal, and the
// resulting model value flows out to subscribers.
//
// The published model value must be treated as read-only by subscribers; it
// is already independent of the field tree, so holding on to it is safe.
type Coordinator struct {
	logger    *slog.Logger
	metrics   MetricsCollector
	engine    *ReconcileEngine
	scheduler *validationScheduler
	store     DraftStore
	formID    string

	mu           sync.RWMutex
	tree         *FieldTree
	model        ModelValue
	lastExternal ModelValue
	edited       map[string]struct{}
	subscribers  []func(ModelValue)
	resultSubs   []func(Result)
	closed       bool
}

// NewCoordinator constructs a coordinator around an initial model value.
// The initial value is structurally copied; the caller's map is never
// retained.
func NewCoordinator(initial ModelValue, opts ...Option) (*Coordinator, error) {
	cfg := coordinatorOptions{
		debounce: DefaultDebounceInterval,
		logger:   slog.Default(),
		metrics:  &NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	model, err := deep.Copy(initial)
	if err != nil {
		return nil, formErrors.NewCloneError(formErrors.OpRegister,
			fmt.Errorf("initial value is not structurally copyable: %w", err))
	}
	if model == nil {
		model = make(map[string]any)
	}

	c := &Coordinator{
		logger:  cfg.logger,
		metrics: cfg.metrics,
		engine: NewReconcileEngine(cfg.merge,
			WithEngineLogger(cfg.logger),
			WithEngineMetrics(cfg.metrics)),
		store:  cfg.store,
		formID: cfg.formID,
		tree:   NewFieldTree(),
		model:  model,
		edited: make(map[string]struct{}),
	}
	c.scheduler = newValidationScheduler(
		cfg.validate,
		cfg.debounce,
		c.modelSnapshot,
		c.notifyResult,
		cfg.logger,
		cfg.metrics,
	)

	// Seed registered-field values lazily: fields register on first
	// SetField or explicit RegisterField call.
	return c, nil
}

// RegisterField registers a field at the given path, seeding its value from
// the current model when present.
func (c *Coordinator) RegisterField(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return formErrors.New(formErrors.OpRegister, fmt.Errorf("coordinator is closed"))
	}
	f := c.tree.Register(path)
	if !f.hasValue {
		if v, ok := fieldpath.Get(c.model, f.Path); ok {
			f.value = v
			f.hasValue = true
		}
	}
	c.logger.Debug("Field registered", "field", path)
	return nil
}

// SetFieldDisabled marks a field administratively disabled or enabled.
// Disabled fields stop participating in naive value computation but still
// appear, with their last-known value, in every materialized model.
func (c *Coordinator) SetFieldDisabled(path string, disabled bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return formErrors.New(formErrors.OpRegister, fmt.Errorf("coordinator is closed"))
	}
	c.tree.SetDisabled(path, disabled)
	model, subs, err := c.republishLocked(formErrors.OpSetField)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.notifyModel(subs, model)
	c.autosave(model)
	return nil
}

// SetField applies one field-level edit: the value is written into the field
// tree, a fresh model snapshot is materialized and published, and a
// debounced validation is scheduled for the field.
func (c *Coordinator) SetField(path string, value any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return formErrors.New(formErrors.OpSetField, fmt.Errorf("coordinator is closed"))
	}
	c.tree.Set(path, value)
	if top := topLevelKey(path); top != "" {
		c.edited[top] = struct{}{}
	}
	model, subs, err := c.republishLocked(formErrors.OpSetField)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.notifyModel(subs, model)
	c.scheduler.Request(fieldpath.Parse(path).String())
	c.autosave(model)
	return nil
}

// republishLocked materializes the field tree and installs the snapshot as
// the authoritative model. Callers must hold the write lock and notify
// subscribers after releasing it.
func (c *Coordinator) republishLocked(op formErrors.Operation) (ModelValue, []func(ModelValue), error) {
	start := time.Now()
	snapshot, err := Materialize(c.tree)
	if err != nil {
		c.logger.Error("Materialization failed", "error", err)
		return nil, nil, formErrors.NewWithComponent(op, "materializer", err)
	}
	c.metrics.RecordMaterializeDuration(time.Since(start))

	// Overlay onto the existing model so values present in the initial
	// value but not owned by any registered field survive.
	for k, v := range snapshot {
		c.model[k] = v
	}
	model := c.model
	subs := make([]func(ModelValue), len(c.subscribers))
	copy(subs, c.subscribers)
	return model, subs, nil
}

// ApplyExternal reconciles a freshly arrived external value against the
// current model. The merged result is published unless the configured
// conflict handling held the update as a pending conflict.
func (c *Coordinator) ApplyExternal(newExternal ModelValue) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return formErrors.New(formErrors.OpMerge, fmt.Errorf("coordinator is closed"))
	}
	current := c.model
	edited := make(map[string]struct{}, len(c.edited))
	for k := range c.edited {
		edited[k] = struct{}{}
	}
	isDirty := len(edited) > 0
	oldExternal := c.lastExternal
	c.mu.Unlock()

	isValid := c.scheduler.ResultSnapshot().Valid()
	merged := c.engine.Merge(current, newExternal, current, oldExternal, edited, isDirty, isValid)

	c.mu.Lock()
	c.lastExternal = newExternal
	changed := !DeepEqual(merged, c.model)
	if changed {
		c.model = merged
	}
	model := c.model
	subs := make([]func(ModelValue), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	if changed {
		c.logger.Debug("External update merged", "conflict_pending", c.engine.Conflict() != nil)
		c.notifyModel(subs, model)
		c.autosave(model)
	}
	return nil
}

// Submit forces validation of every registered field, waits for all
// outstanding validation to settle, and returns the model value if the
// aggregated result has no errors. An invalid model yields a *SubmitError
// carrying the aggregated error map.
func (c *Coordinator) Submit(ctx context.Context) (ModelValue, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, formErrors.New(formErrors.OpSubmit, fmt.Errorf("coordinator is closed"))
	}
	paths := c.tree.Paths()
	c.mu.RUnlock()

	c.logger.Info("Submit requested", "fields", len(paths))
	for _, p := range paths {
		c.scheduler.ValidateNow(p)
	}
	if err := c.scheduler.Settle(ctx); err != nil {
		c.logger.Warn("Submit canceled while waiting for validation", "error", err)
		return nil, formErrors.NewWithComponent(formErrors.OpSubmit, "scheduler", err)
	}

	result := c.scheduler.ResultSnapshot()
	if !result.Valid() {
		c.logger.Info("Submit rejected", "invalid_fields", len(result.Errors))
		return nil, &SubmitError{Errors: result.Errors}
	}

	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()
	c.logger.Info("Submit accepted")
	return model, nil
}

// Reset replaces the model value wholesale and clears all scheduler, dirty,
// and conflict state. Field registrations survive; their values are re-seeded
// from the new initial value.
func (c *Coordinator) Reset(initial ModelValue) error {
	model, err := deep.Copy(initial)
	if err != nil {
		return formErrors.NewCloneError(formErrors.OpReset,
			fmt.Errorf("initial value is not structurally copyable: %w", err))
	}
	if model == nil {
		model = make(map[string]any)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return formErrors.New(formErrors.OpReset, fmt.Errorf("coordinator is closed"))
	}
	c.model = model
	c.lastExternal = nil
	c.edited = make(map[string]struct{})
	for _, path := range c.tree.Paths() {
		f := c.tree.field(path)
		if v, ok := fieldpath.Get(model, f.Path); ok {
			f.value = v
			f.hasValue = true
		} else {
			f.value = nil
			f.hasValue = false
		}
	}
	subs := make([]func(ModelValue), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	c.scheduler.Reset()
	c.engine.ClearConflict()
	c.logger.Info("Coordinator reset")
	c.notifyModel(subs, model)
	return nil
}

// Subscribe registers a handler invoked synchronously, in order, with every
// published model value.
func (c *Coordinator) Subscribe(handler func(ModelValue)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return formErrors.New(formErrors.OpRegister, fmt.Errorf("coordinator is closed"))
	}
	c.subscribers = append(c.subscribers, handler)
	c.logger.Debug("Model subscriber added", "total_subscribers", len(c.subscribers))
	return nil
}

// SubscribeResult registers a handler invoked with every published
// validation result.
func (c *Coordinator) SubscribeResult(handler func(Result)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return formErrors.New(formErrors.OpRegister, fmt.Errorf("coordinator is closed"))
	}
	c.resultSubs = append(c.resultSubs, handler)
	return nil
}

// Model returns the current published model value. Treat it as read-only.
func (c *Coordinator) Model() ModelValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Result returns a snapshot of the consolidated validation state.
func (c *Coordinator) Result() Result {
	return c.scheduler.ResultSnapshot()
}

// Validate schedules a debounced validation for a field without changing
// its value.
func (c *Coordinator) Validate(path string) {
	c.scheduler.Request(fieldpath.Parse(path).String())
}

// Conflict returns the pending conflict record, or nil.
func (c *Coordinator) Conflict() *ConflictRecord {
	return c.engine.Conflict()
}

// ResolveConflict applies an explicit resolution action to the pending
// conflict and publishes the resolved model. It returns nil when no
// conflict is pending.
func (c *Coordinator) ResolveConflict(strategy ResolveStrategy) ModelValue {
	resolved, ok := c.engine.ResolveConflict(strategy)
	if !ok {
		return nil
	}

	c.mu.Lock()
	c.model = resolved
	model := c.model
	subs := make([]func(ModelValue), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	c.notifyModel(subs, model)
	c.autosave(model)
	return model
}

// History returns the conflict-resolution audit log.
func (c *Coordinator) History() *ResolutionLog {
	return c.engine.History()
}

// Close shuts the coordinator down: timers stop, in-flight validations are
// discarded, and the draft store (if configured) is closed. Close is
// idempotent.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.scheduler.Close()

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("Error closing draft store", "error", err)
			return formErrors.NewWithComponent(formErrors.OpClose, "store", err)
		}
	}
	c.logger.Info("Coordinator closed")
	return nil
}

// modelSnapshot hands the validation scheduler an independent copy of the
// current model, so a running validation never observes a half-applied edit.
func (c *Coordinator) modelSnapshot() (ModelValue, error) {
	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()

	snapshot, err := deep.Copy(model)
	if err != nil {
		return nil, formErrors.NewCloneError(formErrors.OpValidate, err)
	}
	return snapshot, nil
}

func (c *Coordinator) notifyModel(subs []func(ModelValue), model ModelValue) {
	for _, handler := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Model subscriber panic recovered", "panic", r)
				}
			}()
			handler(model)
		}()
	}
}

func (c *Coordinator) notifyResult(result Result) {
	c.mu.RLock()
	subs := make([]func(Result), len(c.resultSubs))
	copy(subs, c.resultSubs)
	c.mu.RUnlock()

	for _, handler := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Result subscriber panic recovered", "panic", r)
				}
			}()
			handler(result)
		}()
	}
}

// autosave persists the published model best-effort; a failed save must
// never fail the edit that triggered it.
func (c *Coordinator) autosave(model ModelValue) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	revision, err := c.store.Save(ctx, c.formID, model)
	if err != nil {
		c.logger.Warn("Autosave failed", "form_id", c.formID, "error", err)
		return
	}
	c.logger.Debug("Draft autosaved", "form_id", c.formID, "revision", revision)
}

// topLevelKey returns the first name segment of a path, used for dirty
// tracking at the granularity conflict detection works at.
func topLevelKey(path string) string {
	p := fieldpath.Parse(path)
	if len(p) == 0 || p[0].IsIndex {
		return ""
	}
	return p[0].Key
}
