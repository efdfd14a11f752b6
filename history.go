package formsync

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResolutionRecord captures one explicit conflict resolution for audit.
type ResolutionRecord struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Strategy  ResolveStrategy `json:"strategy"`
	Local     ModelValue      `json:"local,omitempty"`
	External  ModelValue      `json:"external,omitempty"`
	Result    ModelValue      `json:"result,omitempty"`
}

// ResolutionCriteria filters the audit log.
type ResolutionCriteria struct {
	Strategy ResolveStrategy
	Since    time.Time
	Limit    int
}

// ResolutionLog is an in-memory, append-only audit trail of conflict
// resolutions. For durable audit, mirror entries into your own storage from
// a coordinator subscriber.
type ResolutionLog struct {
	mu      sync.Mutex
	records []*ResolutionRecord
}

// NewResolutionLog returns an empty log.
func NewResolutionLog() *ResolutionLog {
	return &ResolutionLog{}
}

func (l *ResolutionLog) record(strategy ResolveStrategy, local, external, result ModelValue) *ResolutionRecord {
	rec := &ResolutionRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Strategy:  strategy,
		Local:     local,
		External:  external,
		Result:    result,
	}
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return rec
}

// List returns matching records, oldest first.
func (l *ResolutionLog) List(criteria ResolutionCriteria) []*ResolutionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*ResolutionRecord, 0, len(l.records))
	for _, rec := range l.records {
		if criteria.Strategy != "" && rec.Strategy != criteria.Strategy {
			continue
		}
		if !criteria.Since.IsZero() && rec.Timestamp.Before(criteria.Since) {
			continue
		}
		out = append(out, rec)
		if criteria.Limit > 0 && len(out) >= criteria.Limit {
			break
		}
	}
	return out
}

// Len returns the number of recorded resolutions.
func (l *ResolutionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
