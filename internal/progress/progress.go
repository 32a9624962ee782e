package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Reporter tracks progress through the phases of a sync run.
// Phases run one at a time; Advance is only called between Begin and End.
type Reporter interface {
	// Begin starts a phase with the number of items it will process
	Begin(phase string, total int)
	// Advance records n more completed items in the current phase
	Advance(n int)
	// End finishes the current phase
	End()
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type    UpdateType
	Phase   string
	Done    int
	Total   int
	Elapsed time.Duration
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateBegin UpdateType = iota
	UpdateAdvance
	UpdateEnd
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback Callback

	mu        sync.Mutex
	phase     string
	done      int
	total     int
	startTime time.Time
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
	}
}

// Begin starts a phase
func (r *CallbackReporter) Begin(phase string, total int) {
	r.mu.Lock()
	r.phase = phase
	r.total = total
	r.done = 0
	r.startTime = time.Now()
	update := r.snapshot(UpdateBegin)
	r.mu.Unlock()

	// callback runs outside the lock so it may call back into the reporter
	r.emit(update)
}

// Advance records completed items
func (r *CallbackReporter) Advance(n int) {
	r.mu.Lock()
	r.done += n
	update := r.snapshot(UpdateAdvance)
	r.mu.Unlock()

	r.emit(update)
}

// End finishes the current phase
func (r *CallbackReporter) End() {
	r.mu.Lock()
	update := r.snapshot(UpdateEnd)
	r.mu.Unlock()

	r.emit(update)
}

func (r *CallbackReporter) snapshot(typ UpdateType) Update {
	return Update{
		Type:    typ,
		Phase:   r.phase,
		Done:    r.done,
		Total:   r.total,
		Elapsed: time.Since(r.startTime),
	}
}

func (r *CallbackReporter) emit(update Update) {
	if r.callback != nil {
		r.callback(update)
	}
}

// NewBarReporter returns a reporter drawing a single-line progress bar per
// phase on w, redrawn in place with carriage returns
func NewBarReporter(w io.Writer, width int) *CallbackReporter {
	return NewCallbackReporter(func(u Update) {
		label := fmt.Sprintf("%-14s", u.Phase)
		switch u.Type {
		case UpdateBegin, UpdateAdvance:
			if u.Total == 0 {
				return
			}
			fmt.Fprintf(w, "\r%s %s %d/%d", label, FormatProgress(int64(u.Done), int64(u.Total), width), u.Done, u.Total)
		case UpdateEnd:
			if u.Total == 0 {
				return
			}
			fmt.Fprintf(w, "\r%s %s %d/%d %s\n", label, FormatProgress(int64(u.Done), int64(u.Total), width), u.Done, u.Total, u.Elapsed.Round(time.Millisecond))
		}
	})
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Begin(phase string, total int) {}
func (NullReporter) Advance(n int)                 {}
func (NullReporter) End()                          {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	var bar strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i < filled:
			bar.WriteByte('=')
		case i == filled:
			bar.WriteByte('>')
		default:
			bar.WriteByte(' ')
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", bar.String(), percent*100)
}
