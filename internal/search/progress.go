package search

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ProgressSnapshot is the completed-vs-total state of a running search.
type ProgressSnapshot struct {
	Family    string        `json:"family"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Percent   float64       `json:"percent"`
	Elapsed   time.Duration `json:"elapsed"`
	ETA       time.Duration `json:"eta"`
}

// ProgressObserver receives a snapshot after every completed candidate. It is
// called from worker goroutines and must be safe for concurrent use.
type ProgressObserver func(ctx context.Context, snapshot ProgressSnapshot)

// Progress tracks completed candidates of one search.
type Progress struct {
	family    string
	total     int
	completed atomic.Int64
	startTime time.Time
}

// NewProgress creates a tracker for total candidates.
func NewProgress(family string, total int) *Progress {
	return &Progress{
		family:    family,
		total:     total,
		startTime: time.Now(),
	}
}

// Increment marks one more candidate complete and returns the new snapshot.
func (p *Progress) Increment() ProgressSnapshot {
	return p.snapshot(int(p.completed.Add(1)))
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	return p.snapshot(int(p.completed.Load()))
}

func (p *Progress) snapshot(completed int) ProgressSnapshot {
	s := ProgressSnapshot{
		Family:    p.family,
		Completed: completed,
		Total:     p.total,
		Elapsed:   time.Since(p.startTime),
	}
	if p.total > 0 {
		s.Percent = float64(completed) / float64(p.total) * 100
	}
	if completed > 0 && completed < p.total {
		rate := float64(completed) / s.Elapsed.Seconds()
		if rate > 0 {
			s.ETA = time.Duration(float64(p.total-completed) / rate * float64(time.Second))
		}
	}
	return s
}

// IsComplete reports whether every candidate has been evaluated.
func (s ProgressSnapshot) IsComplete() bool {
	return s.Completed >= s.Total
}

// ETAString formats the remaining time the way progress logs show it.
func (s ProgressSnapshot) ETAString() string {
	if s.Completed == 0 || s.Total == 0 {
		return "calculating..."
	}
	remaining := s.ETA.Seconds()
	switch {
	case remaining < 60:
		return fmt.Sprintf("%.0f seconds", remaining)
	case remaining < 3600:
		return fmt.Sprintf("%.1f minutes", remaining/60)
	default:
		return fmt.Sprintf("%.1f hours", remaining/3600)
	}
}

// progressInterval returns how many completions pass between progress logs.
func progressInterval(configured, total int) int {
	if configured > 0 {
		return configured
	}
	return max(1, total/10)
}
