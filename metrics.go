package formsync

import "time"

// MetricsCollector provides hooks for collecting synchronization and
// validation metrics
type MetricsCollector interface {
	// RecordValidationDuration records how long a validation run took
	RecordValidationDuration(field string, duration time.Duration)

	// RecordValidationErrors records validation run failures by type
	RecordValidationErrors(field string, errorType string)

	// RecordDebounceCollapse records a scheduled validation being replaced
	// by a newer request before it fired
	RecordDebounceCollapse(field string)

	// RecordSupersession records an in-flight validation result being
	// discarded because a newer request started
	RecordSupersession(field string)

	// RecordMerge records an external merge by strategy
	RecordMerge(strategy string)

	// RecordConflicts records the number of conflicting fields detected
	RecordConflicts(detected int)

	// RecordMaterializeDuration records how long a model snapshot took
	RecordMaterializeDuration(duration time.Duration)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordValidationDuration(field string, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordValidationErrors(field string, errorType string)         {}
func (n *NoOpMetricsCollector) RecordDebounceCollapse(field string)                           {}
func (n *NoOpMetricsCollector) RecordSupersession(field string)                               {}
func (n *NoOpMetricsCollector) RecordMerge(strategy string)                                   {}
func (n *NoOpMetricsCollector) RecordConflicts(detected int)                                  {}
func (n *NoOpMetricsCollector) RecordMaterializeDuration(duration time.Duration)              {}
