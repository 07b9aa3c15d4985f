// Package records keeps the client's view of the immutable task record log.
package records

import (
	"sort"
	"sync"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
)

// Log keeps records in the order the authority sent them. Only records of
// the same task are put back in RecordSequence order, within the positions
// that task already holds. Records are never merged or deduplicated.
type Log struct {
	mu      sync.Mutex
	records []model.TaskRecord
}

func NewLog() *Log { return &Log{} }

// Replace installs the authoritative tail.
func (l *Log) Replace(recs []model.TaskRecord) {
	out := append([]model.TaskRecord(nil), recs...)
	sortLog(out)
	l.mu.Lock()
	l.records = out
	l.mu.Unlock()
}

func (l *Log) Append(r model.TaskRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
	sortLog(l.records)
}

// sortLog sorts each task's records by sequence inside the slots the task
// occupies, so records of different tasks keep their interleaving.
func sortLog(recs []model.TaskRecord) {
	slots := map[string][]int{}
	for i, r := range recs {
		slots[r.TaskID] = append(slots[r.TaskID], i)
	}
	for _, idx := range slots {
		if len(idx) < 2 {
			continue
		}
		group := make([]model.TaskRecord, len(idx))
		for k, i := range idx {
			group[k] = recs[i]
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].RecordSequence < group[j].RecordSequence
		})
		for k, i := range idx {
			recs[i] = group[k]
		}
	}
}

func (l *Log) All() []model.TaskRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.TaskRecord(nil), l.records...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *Log) ForTask(taskID string) []model.TaskRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.TaskRecord
	for _, r := range l.records {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out
}

// Focus returns the single record flagged isFocus. More than one is a
// conflict: the local tail is stale and must be refetched.
func (l *Log) Focus() (model.TaskRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var (
		found model.TaskRecord
		n     int
	)
	for _, r := range l.records {
		if r.IsFocus {
			if n == 0 {
				found = r
			}
			n++
		}
	}
	if n > 1 {
		return model.TaskRecord{}, false, &apperr.ConflictError{Code: "multiple_focus", Message: "more than one focus record"}
	}
	return found, n == 1, nil
}

// FocusRecords returns the records of the focus task, or nothing when there
// is no focus task.
func (l *Log) FocusRecords(focusTaskID string) []model.TaskRecord {
	if focusTaskID == "" {
		return nil
	}
	return l.ForTask(focusTaskID)
}

func (l *Log) Reset() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()
}
