package formsync

import (
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// MergeStrategy selects how a freshly arrived external value is merged into
// the current local value.
type MergeStrategy string

const (
	// MergeReplace spreads the external value, then overlays every
	// top-level key the local value defines. Local always wins
	// field-by-field; incoming keys absent locally are adopted.
	MergeReplace MergeStrategy = "replace"

	// MergePreserve keeps the local value unchanged while it is dirty or
	// invalid; otherwise the external value is adopted in full.
	MergePreserve MergeStrategy = "preserve"

	// MergeSmart is MergeReplace plus per-path preservation: every path in
	// PreserveFields is forced back to its current local value, including
	// dot-notation nested paths. This is the default.
	MergeSmart MergeStrategy = "smart"
)

// ConflictDecision is what an OnConflict callback returns: either a resolved
// model value to use directly, or a request to hold the conflict for
// explicit user arbitration.
type ConflictDecision struct {
	value      ModelValue
	promptUser bool
}

// UseValue resolves a conflict immediately with the given model value.
func UseValue(v ModelValue) ConflictDecision {
	return ConflictDecision{value: v}
}

// PromptUser holds the conflict as a pending record until a resolution
// action is invoked; the merge returns the local value unchanged meanwhile.
func PromptUser() ConflictDecision {
	return ConflictDecision{promptUser: true}
}

// OnConflictFunc arbitrates between divergent local and external values.
type OnConflictFunc func(local, external ModelValue) ConflictDecision

// MergeOptions configures the reconcile engine.
type MergeOptions struct {
	// Strategy defaults to MergeSmart when empty
	Strategy MergeStrategy

	// PreserveFields are dot-notation paths forced back to their local
	// value under MergeSmart
	PreserveFields []string

	// ConflictResolution enables conflict detection; OnConflict is then
	// invoked when a locally edited field was also changed externally
	ConflictResolution bool
	OnConflict         OnConflictFunc
}

// ConflictRecord is a held, user-resolvable pair of divergent local and
// external values awaiting an explicit resolution action.
type ConflictRecord struct {
	Local     ModelValue
	External  ModelValue
	Timestamp time.Time
}

// ResolveStrategy names an explicit conflict-resolution action.
type ResolveStrategy string

const (
	ResolveLocal    ResolveStrategy = "local"
	ResolveExternal ResolveStrategy = "external"
	ResolveMerge    ResolveStrategy = "merge"
)

// ReconcileEngine merges externally sourced values into the current local
// value without discarding unsaved local edits, and holds detected conflicts
// until explicitly resolved.
type ReconcileEngine struct {
	options MergeOptions
	logger  *slog.Logger
	metrics MetricsCollector
	history *ResolutionLog

	mu       sync.Mutex
	conflict *ConflictRecord
}

// EngineOption configures a ReconcileEngine.
type EngineOption interface {
	apply(*ReconcileEngine)
}

type engineOptionFunc func(*ReconcileEngine)

func (f engineOptionFunc) apply(e *ReconcileEngine) { f(e) }

// WithEngineLogger sets the logger for the engine.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return engineOptionFunc(func(e *ReconcileEngine) { e.logger = logger })
}

// WithEngineMetrics sets the metrics collector for the engine.
func WithEngineMetrics(mc MetricsCollector) EngineOption {
	return engineOptionFunc(func(e *ReconcileEngine) { e.metrics = mc })
}

// WithResolutionLog sets the audit log appended to on every explicit
// conflict resolution.
func WithResolutionLog(log *ResolutionLog) EngineOption {
	return engineOptionFunc(func(e *ReconcileEngine) { e.history = log })
}

// NewReconcileEngine constructs a reconcile engine.
func NewReconcileEngine(options MergeOptions, opts ...EngineOption) *ReconcileEngine {
	e := &ReconcileEngine{
		options: options,
		logger:  slog.Default(),
		metrics: &NoOpMetricsCollector{},
		history: NewResolutionLog(),
	}
	for _, opt := range opts {
		opt.apply(e)
	}
	return e
}

// Merge reconciles a freshly arrived external value against the current
// local value.
//
// formValue is the current local value, possibly with unsaved edits;
// currentValue is the local value before this merge (the coordinator passes
// the same map for both; external callers wiring their own data source may
// distinguish them). oldExternal is the last external value seen, used to
// decide whether the external side actually changed and as the common
// ancestor for conflict detection. editedFields limits conflict detection to
// top-level keys edited locally; nil or empty means every divergent key is
// considered edited.
//
// Merge never returns an error: divergence is not a failure, it is routed
// through the conflict contract and surfaces as a pending ConflictRecord.
func (e *ReconcileEngine) Merge(formValue, newExternal, currentValue, oldExternal ModelValue, editedFields map[string]struct{}, isDirty, isValid bool) ModelValue {
	// Nothing external to merge.
	if newExternal == nil {
		return formValue
	}
	// No local state to protect yet.
	if currentValue == nil {
		return newExternal
	}
	// A no-op external refresh must not clobber local edits.
	if DeepEqual(newExternal, oldExternal) {
		return formValue
	}

	strategy := e.options.Strategy
	if strategy == "" {
		strategy = MergeSmart
	}
	e.metrics.RecordMerge(string(strategy))

	var result ModelValue
	switch strategy {
	case MergeReplace:
		result = spread(newExternal, formValue)
	case MergePreserve:
		if isDirty || !isValid {
			result = formValue
		} else {
			result = newExternal
		}
	default:
		result = spread(newExternal, formValue)
		for _, field := range e.options.PreserveFields {
			if v, ok := GetNested(formValue, field); ok {
				SetNested(result, field, v)
			}
		}
	}

	if e.options.ConflictResolution && e.options.OnConflict != nil {
		if keys := e.detectConflicts(currentValue, newExternal, oldExternal, editedFields); len(keys) > 0 {
			e.metrics.RecordConflicts(len(keys))
			e.logger.Debug("Detected concurrent local and external edits", "fields", keys)

			decision := e.options.OnConflict(currentValue, newExternal)
			if decision.promptUser {
				e.mu.Lock()
				e.conflict = &ConflictRecord{
					Local:     currentValue,
					External:  newExternal,
					Timestamp: time.Now(),
				}
				e.mu.Unlock()
				e.logger.Info("Holding conflict for user arbitration", "fields", keys)
				return currentValue
			}
			if decision.value != nil {
				return decision.value
			}
		}
	}

	return result
}

// detectConflicts returns the top-level keys where local and external both
// diverged from the last external value seen and disagree with each other.
func (e *ReconcileEngine) detectConflicts(currentValue, newExternal, oldExternal ModelValue, editedFields map[string]struct{}) []string {
	var keys []string
	for k, externalVal := range newExternal {
		oldVal := oldExternal[k]
		if DeepEqual(externalVal, oldVal) {
			continue
		}
		localVal, ok := currentValue[k]
		if !ok {
			continue
		}
		if DeepEqual(localVal, oldVal) || DeepEqual(localVal, externalVal) {
			continue
		}
		if len(editedFields) > 0 {
			if _, edited := editedFields[k]; !edited {
				continue
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Conflict returns the pending conflict record, or nil.
func (e *ReconcileEngine) Conflict() *ConflictRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conflict == nil {
		return nil
	}
	rec := *e.conflict
	return &rec
}

// ResolveConflict applies an explicit resolution action to the pending
// conflict. It returns false when no conflict is pending or the strategy is
// unknown; otherwise the resolved value is returned, the record is cleared,
// and the resolution is appended to the audit log.
func (e *ReconcileEngine) ResolveConflict(strategy ResolveStrategy) (ModelValue, bool) {
	e.mu.Lock()
	rec := e.conflict
	if rec == nil {
		e.mu.Unlock()
		return nil, false
	}

	var result ModelValue
	switch strategy {
	case ResolveLocal:
		result = rec.Local
	case ResolveExternal:
		result = rec.External
	case ResolveMerge:
		result = spread(rec.External, rec.Local)
	default:
		e.mu.Unlock()
		e.logger.Warn("Ignoring unknown conflict resolution strategy", "strategy", strategy)
		return nil, false
	}
	e.conflict = nil
	e.mu.Unlock()

	if e.history != nil {
		e.history.record(strategy, rec.Local, rec.External, result)
	}
	e.logger.Info("Conflict resolved", "strategy", strategy)
	return result, true
}

// ClearConflict drops any pending conflict without resolving it.
func (e *ReconcileEngine) ClearConflict() {
	e.mu.Lock()
	e.conflict = nil
	e.mu.Unlock()
}

// History returns the resolution audit log.
func (e *ReconcileEngine) History() *ResolutionLog {
	return e.history
}

// spread returns a new top-level map holding base's keys overlaid by
// overlay's keys, the moral equivalent of {...base, ...overlay}.
func spread(base, overlay ModelValue) ModelValue {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// visitPair identifies a pair of containers already being compared, so
// self-referential structures terminate.
type visitPair struct {
	a, b uintptr
}

// DeepEqual reports structural equality for primitives, slices (length plus
// element-wise), and maps (same key set and per-key equality). Re-encountered
// reference pairs are treated as equal without further descent, so cyclic
// values cannot recurse forever. Other types fall back to reflect.DeepEqual.
func DeepEqual(a, b any) bool {
	return deepEqual(a, b, make(map[visitPair]bool))
}

func deepEqual(a, b any, visited map[visitPair]bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap || bIsMap {
		if !aIsMap || !bIsMap {
			return false
		}
		if len(am) != len(bm) {
			return false
		}
		if len(am) > 0 {
			pair := visitPair{reflect.ValueOf(am).Pointer(), reflect.ValueOf(bm).Pointer()}
			if visited[pair] {
				return true
			}
			visited[pair] = true
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !deepEqual(av, bv, visited) {
				return false
			}
		}
		return true
	}

	as, aIsSlice := a.([]any)
	bs, bIsSlice := b.([]any)
	if aIsSlice || bIsSlice {
		if !aIsSlice || !bIsSlice {
			return false
		}
		if len(as) != len(bs) {
			return false
		}
		if len(as) > 0 {
			pair := visitPair{reflect.ValueOf(as).Pointer(), reflect.ValueOf(bs).Pointer()}
			if visited[pair] {
				return true
			}
			visited[pair] = true
		}
		for i := range as {
			if !deepEqual(as[i], bs[i], visited) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

// GetNested reads a dot-notation path restricted to name segments (no
// bracket syntax). nil or non-map intermediates make the path unset.
func GetNested(root ModelValue, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	var current any = root
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok || m == nil {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetNested writes a dot-notation path restricted to name segments,
// overwriting nil or non-map intermediates with fresh maps. The empty path
// is a no-op.
func SetNested(root ModelValue, path string, value any) {
	if path == "" || root == nil {
		return
	}
	keys := strings.Split(path, ".")
	m := map[string]any(root)
	for _, key := range keys[:len(keys)-1] {
		next, ok := m[key].(map[string]any)
		if !ok || next == nil {
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = value
}
