package formsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// validationFailedMessage is the single synthetic error entry recorded for a
// field whose validation routine returned an error or panicked.
const validationFailedMessage = "validation failed"

// schedulerField tracks the debounce timer and request generation for one
// field path. The generation is the supersession gate: a run whose
// generation no longer matches the field's is discarded wholesale.
type schedulerField struct {
	gen      uint64
	timer    *time.Timer
	timerSet bool
}

// validationScheduler owns one debounce/cancellation timer per field,
// invokes the caller-supplied validation routine, and publishes a
// consolidated result. Fields validate independently and concurrently;
// there is no cross-field cancellation.
type validationScheduler struct {
	validate ValidateFunc
	interval time.Duration
	snapshot func() (ModelValue, error)
	onUpdate func(Result)
	logger   *slog.Logger
	metrics  MetricsCollector

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	fields    map[string]*schedulerField
	errors    map[string][]string
	warnings  map[string][]string
	pending   map[string]struct{}
	scheduled int
	running   int
	waiters   []chan struct{}
	closed    bool
}

func newValidationScheduler(validate ValidateFunc, interval time.Duration, snapshot func() (ModelValue, error), onUpdate func(Result), logger *slog.Logger, metrics MetricsCollector) *validationScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &validationScheduler{
		validate: validate,
		interval: interval,
		snapshot: snapshot,
		onUpdate: onUpdate,
		logger:   logger,
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
		fields:   make(map[string]*schedulerField),
		errors:   make(map[string][]string),
		warnings: make(map[string][]string),
		pending:  make(map[string]struct{}),
	}
}

// Request schedules a debounced validation for a field. A prior scheduled or
// running request for the same field is superseded: its timer is cleared and
// its eventual result, if already running, is discarded on arrival.
func (s *validationScheduler) Request(path string) {
	if s.validate == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	st := s.fields[path]
	if st == nil {
		st = &schedulerField{}
		s.fields[path] = st
	}
	st.gen++
	gen := st.gen
	if st.timerSet {
		st.timer.Stop()
		s.metrics.RecordDebounceCollapse(path)
		s.logger.Debug("Collapsing scheduled validation into newer request", "field", path)
	} else {
		s.scheduled++
		st.timerSet = true
	}
	s.pending[path] = struct{}{}
	st.timer = time.AfterFunc(s.interval, func() { s.fire(path, gen) })
	result := s.resultLocked()
	s.mu.Unlock()

	s.publish(result)
}

// ValidateNow runs a field's validation immediately, bypassing the debounce
// window. Any scheduled or running request for the field is superseded.
func (s *validationScheduler) ValidateNow(path string) {
	if s.validate == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	st := s.fields[path]
	if st == nil {
		st = &schedulerField{}
		s.fields[path] = st
	}
	st.gen++
	gen := st.gen
	if st.timerSet {
		st.timer.Stop()
		st.timerSet = false
		s.scheduled--
	}
	s.pending[path] = struct{}{}
	s.running++
	s.mu.Unlock()

	go s.run(path, gen)
}

// fire transitions a scheduled request to running once its debounce timer
// elapses. A stale timer (superseded after the timer already fired) is
// ignored; the newer request owns the field's accounting.
func (s *validationScheduler) fire(path string, gen uint64) {
	s.mu.Lock()
	st := s.fields[path]
	if s.closed || st == nil || st.gen != gen || !st.timerSet {
		s.mu.Unlock()
		return
	}
	st.timerSet = false
	s.scheduled--
	s.running++
	s.mu.Unlock()

	s.run(path, gen)
}

func (s *validationScheduler) run(path string, gen uint64) {
	start := time.Now()
	model, err := s.snapshot()
	var outcome ValidationOutcome
	if err == nil {
		outcome, err = s.safeValidate(model, path)
	}
	s.complete(path, gen, outcome, err, start)
}

// safeValidate invokes the caller-supplied routine, converting a panic into
// an ordinary error so one misbehaving validator cannot take down the form.
func (s *validationScheduler) safeValidate(model ModelValue, path string) (outcome ValidationOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validation routine panicked: %v", r)
		}
	}()
	return s.validate(s.ctx, model, path)
}

func (s *validationScheduler) complete(path string, gen uint64, outcome ValidationOutcome, runErr error, start time.Time) {
	duration := time.Since(start)

	s.mu.Lock()
	s.running--
	st := s.fields[path]
	if st == nil || st.gen != gen {
		// Superseded while running: discard the result entirely, no
		// partial writes. The field stays pending for the newer request.
		s.metrics.RecordSupersession(path)
		s.logger.Debug("Discarding superseded validation result", "field", path)
		s.settleLocked()
		s.mu.Unlock()
		return
	}

	if runErr != nil {
		s.errors[path] = []string{validationFailedMessage}
		delete(s.warnings, path)
		s.metrics.RecordValidationErrors(path, "routine_failure")
		s.logger.Warn("Validation routine failed", "field", path, "error", runErr)
	} else {
		s.mergeOutcomeLocked(path, outcome)
	}
	delete(s.pending, path)
	s.metrics.RecordValidationDuration(path, duration)
	s.logger.Debug("Validation completed",
		"field", path,
		"duration", duration,
		"errors", len(outcome.Errors))

	result := s.resultLocked()
	s.settleLocked()
	s.mu.Unlock()

	s.publish(result)
}

// mergeOutcomeLocked folds one run's outcome into the consolidated result,
// replacing only the entries for the reported field paths. Unrelated
// fields' results are never dropped.
func (s *validationScheduler) mergeOutcomeLocked(path string, outcome ValidationOutcome) {
	delete(s.errors, path)
	delete(s.warnings, path)
	for p, msgs := range outcome.Errors {
		if len(msgs) == 0 {
			delete(s.errors, p)
			continue
		}
		s.errors[p] = append([]string(nil), msgs...)
	}
	for p, msgs := range outcome.Warnings {
		if len(msgs) == 0 {
			delete(s.warnings, p)
			continue
		}
		s.warnings[p] = append([]string(nil), msgs...)
	}
}

// Settle blocks until no validation is scheduled or running, or the context
// is done. Submit uses it to avoid racing a still-running validation.
func (s *validationScheduler) Settle(ctx context.Context) error {
	s.mu.Lock()
	if s.scheduled == 0 && s.running == 0 {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *validationScheduler) settleLocked() {
	if s.scheduled != 0 || s.running != 0 {
		return
	}
	for _, ch := range s.waiters {
		close(ch)
	}
	s.waiters = nil
}

// ResultSnapshot returns an independent copy of the consolidated result.
func (s *validationScheduler) ResultSnapshot() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultLocked()
}

func (s *validationScheduler) resultLocked() Result {
	r := Result{
		Errors:        make(map[string][]string, len(s.errors)),
		Warnings:      make(map[string][]string, len(s.warnings)),
		PendingFields: make(map[string]struct{}, len(s.pending)),
	}
	for p, msgs := range s.errors {
		r.Errors[p] = append([]string(nil), msgs...)
	}
	for p, msgs := range s.warnings {
		r.Warnings[p] = append([]string(nil), msgs...)
	}
	for p := range s.pending {
		r.PendingFields[p] = struct{}{}
	}
	return r
}

func (s *validationScheduler) publish(result Result) {
	if s.onUpdate == nil {
		return
	}
	s.onUpdate(result)
}

// Reset cancels all timers, invalidates in-flight runs, and clears the
// consolidated result. In-flight runs drain through the supersession path.
func (s *validationScheduler) Reset() {
	s.mu.Lock()
	for _, st := range s.fields {
		st.gen++
		if st.timerSet {
			st.timer.Stop()
			st.timerSet = false
			s.scheduled--
		}
	}
	s.errors = make(map[string][]string)
	s.warnings = make(map[string][]string)
	s.pending = make(map[string]struct{})
	s.settleLocked()
	s.mu.Unlock()
}

// Close stops the scheduler. In-flight runs are invalidated and their
// results discarded; the base context handed to validation routines is
// canceled. Close is idempotent.
func (s *validationScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, st := range s.fields {
		st.gen++
		if st.timerSet {
			st.timer.Stop()
			st.timerSet = false
			s.scheduled--
		}
	}
	s.settleLocked()
	s.mu.Unlock()

	s.cancel()
}
