package telemetry

import (
	"strings"
	"sync"
)

// Report is a single call captured by Recorder.
type Report struct {
	Level  string
	ID     string
	Params []any
}

// Recorder is an API that keeps every report in memory, tests use it to check
// that failures were reported instead of swallowed.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
	counts  map[string]int64
}

func NewRecorder() *Recorder {
	return &Recorder{counts: map[string]int64{}}
}

func (r *Recorder) add(level, id string, params []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Level: level, ID: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any)  { r.add("broken", id, params) }
func (r *Recorder) ReportWarning(id string, params ...any) { r.add("warning", id, params) }
func (r *Recorder) ReportDebug(msg string, params ...any)  { r.add("debug", msg, params) }

func (r *Recorder) ReportCount(id string, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id] = count
}

// Reports returns the reports of the given level ("broken", "warning" or
// "debug") in the order they were made.
func (r *Recorder) Reports(level string) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Report
	for _, rep := range r.reports {
		if rep.Level == level {
			out = append(out, rep)
		}
	}
	return out
}

// Has reports whether any report of the level has an id containing substr.
func (r *Recorder) Has(level, substr string) bool {
	for _, rep := range r.Reports(level) {
		if strings.Contains(rep.ID, substr) {
			return true
		}
	}
	return false
}

// Count returns the last count reported under an id ending in suffix.
func (r *Recorder) Count(suffix string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, n := range r.counts {
		if strings.HasSuffix(id, suffix) {
			return n, true
		}
	}
	return 0, false
}
