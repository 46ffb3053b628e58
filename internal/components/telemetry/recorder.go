package telemetry

import (
	"sync"
)

// Report is a single call recorded by Recorder.
type Report struct {
	ID     string
	Params []any
}

// Recorder is an API that keeps every report in memory, it is meant for tests
// that need to assert a component did (or did not) report something.
type Recorder struct {
	mutex    sync.Mutex
	Broken   []Report
	Warnings []Report
	Counts   map[string]int64
}

func NewRecorder() *Recorder {
	return &Recorder{Counts: map[string]int64{}}
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Broken = append(r.Broken, Report{ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Warnings = append(r.Warnings, Report{ID: id, Params: params})
}

func (r *Recorder) ReportDebug(string, ...any) {}

func (r *Recorder) ReportCount(id string, count int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Counts[id] = count
}

// WarningIDs returns the ids of all recorded warnings in order.
func (r *Recorder) WarningIDs() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ids := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		ids[i] = w.ID
	}
	return ids
}
