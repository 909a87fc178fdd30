package logger

import (
	"io"
	"strings"
	"sync"
)

// Tally counts warnings and errors that passed through the logger. The
// extraction core never aborts on recoverable parse conditions, so the tally
// is how a caller learns after the fact whether an input unit produced
// partial data.
type Tally struct {
	mu       sync.Mutex
	warnings int
	errors   int
}

var (
	globalTally *Tally
	tallyOnce   sync.Once
)

// GetTally returns the global tally instance
func GetTally() *Tally {
	tallyOnce.Do(func() {
		globalTally = &Tally{}
	})
	return globalTally
}

// Snapshot returns the warning and error counts seen so far.
func (t *Tally) Snapshot() (warnings, errors int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.warnings, t.errors
}

// Reset clears the counters. Call it between input units.
func (t *Tally) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings = 0
	t.errors = 0
}

func (t *Tally) add(level string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch level {
	case "warn", "warning":
		t.warnings++
	case "error":
		t.errors++
	}
}

// TallyWriter is an io.Writer that inspects log output and counts
// warning/error entries before passing them through.
type TallyWriter struct {
	tally    *Tally
	original io.Writer
}

// NewTallyWriter creates a writer that feeds the global tally
func NewTallyWriter(original io.Writer) *TallyWriter {
	return &TallyWriter{
		tally:    GetTally(),
		original: original,
	}
}

// Write implements io.Writer, parsing the zerolog level field
func (w *TallyWriter) Write(p []byte) (n int, err error) {
	if w.original != nil {
		n, err = w.original.Write(p)
	} else {
		n = len(p)
	}

	line := string(p)
	if idx := strings.Index(line, `"level":"`); idx >= 0 {
		start := idx + 9
		if end := strings.Index(line[start:], `"`); end > 0 {
			w.tally.add(line[start : start+end])
		}
	}

	return n, err
}
