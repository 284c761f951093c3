// Package monitoring holds the diagnostic loggers shared by the point cloud
// packages. Nothing here affects results; it only reports progress and
// recoverable anomalies such as dropped records or skipped sources.
package monitoring

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Warnf reports a recoverable anomaly. It routes through Logf with a
// "warning: " prefix so a single SetLogger call redirects both.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Recorder collects formatted log lines. Install it with Capture.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Capture routes Logf into a new Recorder and returns a restore func.
func Capture() (*Recorder, func()) {
	prev := Logf
	r := &Recorder{}
	SetLogger(r.Logf)
	return r, func() { Logf = prev }
}

// Logf records one formatted line.
func (r *Recorder) Logf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of everything recorded so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any recorded line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
