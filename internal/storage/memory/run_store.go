package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/pdfworker/internal/report"
)

// RunStore keeps run records in insertion order.
type RunStore struct {
	mu   sync.RWMutex
	runs []report.RunRecord
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{}
}

// RecordRun appends a run record.
func (s *RunStore) RecordRun(_ context.Context, record report.RunRecord) error {
	if record.RunID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Sections = append([]string(nil), record.Sections...)
	record.Degradations = append([]string(nil), record.Degradations...)
	s.runs = append(s.runs, record)
	return nil
}

// Runs returns a snapshot of every recorded run.
func (s *RunStore) Runs() []report.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]report.RunRecord(nil), s.runs...)
}

// Get returns the record for runID.
func (s *RunStore) Get(runID string) (report.RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.RunID == runID {
			return r, true
		}
	}
	return report.RunRecord{}, false
}
