package migrate

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tracker formats migration progress for a terminal. It is safe for
// concurrent use, although the Manager reports sequentially.
type Tracker struct {
	writer  io.Writer
	mu      sync.Mutex
	started time.Time
}

// NewTracker creates a tracker writing to w (typically os.Stderr).
func NewTracker(w io.Writer) *Tracker {
	return &Tracker{writer: w, started: time.Now()}
}

// Report writes one progress line. It has the callback shape the
// Manager's WithProgress option expects.
func (t *Tracker) Report(migrated, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.started).Round(time.Millisecond)
	pct := 0.0
	if total > 0 {
		pct = float64(migrated) / float64(total) * 100
	}
	fmt.Fprintf(t.writer, "migrated %d/%d items (%.0f%%, %s elapsed)\n",
		migrated, total, pct, elapsed)
}
