package analysis

import "sync/atomic"

// ProgressCounter tracks completions against a known total. Process-local
// and recreated per run; the count only ever moves forward, one tick per
// enumerated file regardless of the skip/success/failure path taken.
// Increment is safe under concurrent completions.
type ProgressCounter struct {
	total     int64
	completed atomic.Int64
	label     string
}

// NewProgressCounter creates a counter for the given total.
func NewProgressCounter(total int64, label string) *ProgressCounter {
	if label == "" {
		label = DefaultProgressLabel
	}
	return &ProgressCounter{total: total, label: label}
}

// Increment advances the counter by one and returns the new completed count.
func (p *ProgressCounter) Increment() int64 { return p.completed.Add(1) }

// Completed returns the current completed count.
func (p *ProgressCounter) Completed() int64 { return p.completed.Load() }

// Total returns the total the counter was created with.
func (p *ProgressCounter) Total() int64 { return p.total }

// Label returns the human-readable progress label.
func (p *ProgressCounter) Label() string { return p.label }
