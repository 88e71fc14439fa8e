// Package progress reports replication progress on the operator stream.
package progress

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Display modes.
const (
	ModeMarkers = "markers"
	ModeBar     = "bar"
)

// Tracker tracks migration progress. In markers mode it prints "<n>... "
// every Every rows and breaks the line every LineEvery rows; in bar mode
// it renders a progress bar sized from the table's row count.
type Tracker struct {
	out       io.Writer
	mode      string
	every     int64
	lineEvery int64

	bar       *progressbar.ProgressBar
	table     string
	current   atomic.Int64
	overall   atomic.Int64
	openLine  bool
	startTime time.Time
}

// New creates a new progress tracker writing to out.
func New(out io.Writer, mode string, every, lineEvery int64) *Tracker {
	if every <= 0 {
		every = 10000
	}
	if lineEvery < every {
		lineEvery = every
	}
	return &Tracker{
		out:       out,
		mode:      mode,
		every:     every,
		lineEvery: lineEvery,
		startTime: time.Now(),
	}
}

// WantsTotal reports whether Start needs a real row count.
func (t *Tracker) WantsTotal() bool {
	return t.mode == ModeBar
}

// Start resets the per-table counter. total is only used in bar mode: a
// negative total renders a spinner and an empty table renders nothing.
func (t *Tracker) Start(table string, total int64) {
	t.table = table
	t.current.Store(0)
	t.openLine = false
	t.bar = nil
	if t.mode != ModeBar || total == 0 {
		return
	}
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(table),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Add increments the progress counter
func (t *Tracker) Add(n int64) {
	prev := t.current.Load()
	cur := t.current.Add(n)
	t.overall.Add(n)

	if t.bar != nil {
		_ = t.bar.Add64(n)
		return
	}
	for m := prev/t.every + 1; m*t.every <= cur; m++ {
		mark := m * t.every
		fmt.Fprintf(t.out, "%d... ", mark)
		t.openLine = true
		if mark%t.lineEvery == 0 {
			fmt.Fprintln(t.out)
			t.openLine = false
		}
	}
}

// Current returns the row count of the current table.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Overall returns the row count across all tables.
func (t *Tracker) Overall() int64 {
	return t.overall.Load()
}

// Done ends the current table so the next line starts clean.
func (t *Tracker) Done() {
	if t.bar != nil {
		_ = t.bar.Finish()
		fmt.Fprintln(t.out)
		t.bar = nil
		return
	}
	if t.openLine {
		fmt.Fprintln(t.out)
		t.openLine = false
	}
}

// Finish prints the overall throughput line.
func (t *Tracker) Finish() {
	elapsed := time.Since(t.startTime)
	rowsPerSec := 0.0
	if elapsed > 0 {
		rowsPerSec = float64(t.overall.Load()) / elapsed.Seconds()
	}
	fmt.Fprintf(t.out, "Transferred %d rows in %s (%.0f rows/sec)\n",
		t.overall.Load(), elapsed.Round(time.Second), rowsPerSec)
}
