// Package pipeline provides the statement batching between the row reader
// and the destination connection.
package pipeline

import (
	"fmt"
	"time"
)

// Stats tracks counts and timing for one table transfer.
type Stats struct {
	// Rows is the number of statements submitted.
	Rows int64

	// Errors is the number of statements the destination rejected.
	Errors int64

	// ReadTime is total time spent reading and converting source rows.
	ReadTime time.Duration

	// WriteTime is total time spent executing statements on the target.
	WriteTime time.Duration
}

// String returns a formatted summary of the stats.
func (s *Stats) String() string {
	total := s.TotalTime()
	if total == 0 {
		return fmt.Sprintf("rows=%d, errors=%d", s.Rows, s.Errors)
	}
	return fmt.Sprintf("read=%.1fs (%.0f%%), write=%.1fs (%.0f%%), rows=%d, errors=%d",
		s.ReadTime.Seconds(), float64(s.ReadTime)/float64(total)*100,
		s.WriteTime.Seconds(), float64(s.WriteTime)/float64(total)*100,
		s.Rows, s.Errors)
}

// TotalTime returns the sum of all timing components.
func (s *Stats) TotalTime() time.Duration {
	return s.ReadTime + s.WriteTime
}

// RowsPerSecond calculates the throughput.
func (s *Stats) RowsPerSecond() float64 {
	total := s.TotalTime()
	if total == 0 {
		return 0
	}
	return float64(s.Rows) / total.Seconds()
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Rows += o.Rows
	s.Errors += o.Errors
	s.ReadTime += o.ReadTime
	s.WriteTime += o.WriteTime
}
