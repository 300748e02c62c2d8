package monitoring

import (
	"fmt"
	"sync"
)

// OnceReporter logs a message the first time each key is reported and
// suppresses repeats, so a fault that recurs every tick is logged once.
type OnceReporter struct {
	mu   sync.Mutex
	seen map[string]int
	logf func(format string, v ...any)
}

// NewOnceReporter returns a reporter writing through logf, or through Logf
// when logf is nil.
func NewOnceReporter(logf func(format string, v ...any)) *OnceReporter {
	return &OnceReporter{seen: make(map[string]int), logf: logf}
}

// Report logs the message if key has not been reported before. It returns
// true when the message was logged.
func (r *OnceReporter) Report(key, format string, v ...any) bool {
	r.mu.Lock()
	n := r.seen[key]
	r.seen[key] = n + 1
	r.mu.Unlock()
	if n > 0 {
		return false
	}
	logf := r.logf
	if logf == nil {
		logf = Logf
	}
	logf(format, v...)
	return true
}

// ReportKey is Report with fmt.Sprint(key) as the key.
func (r *OnceReporter) ReportKey(key any, format string, v ...any) bool {
	return r.Report(fmt.Sprint(key), format, v...)
}

// Count returns how many times key was reported, logged or not.
func (r *OnceReporter) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[key]
}

// Reset forgets every key.
func (r *OnceReporter) Reset() {
	r.mu.Lock()
	clear(r.seen)
	r.mu.Unlock()
}
