// Package stats records rate limit decisions for the admin endpoint.
//
// Recording is best-effort: callers log failures and carry on, a stats outage
// never changes a decision.
package stats

import (
	"context"
	"sync"
	"time"
)

// RecentMinutes is how many minute buckets a snapshot covers, the current
// minute included.
const RecentMinutes = 15

// Event is one gatekeeper decision.
type Event struct {
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// Minute is the decision count for one UTC minute.
type Minute struct {
	Start   time.Time `json:"start"`
	Allowed int64     `json:"allowed"`
	Denied  int64     `json:"denied"`
}

// Totals are the aggregated decision counters. Recent lists the non-empty
// minutes of the last RecentMinutes, oldest first.
type Totals struct {
	Allowed int64    `json:"allowed"`
	Denied  int64    `json:"denied"`
	Recent  []Minute `json:"recent,omitempty"`
}

// Recorder persists decision events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Snapshot(ctx context.Context) (Totals, error)
}

// recentStarts returns the start of each minute in the snapshot range ending
// at now, oldest first.
func recentStarts(now time.Time) []time.Time {
	last := now.UTC().Truncate(time.Minute)
	starts := make([]time.Time, RecentMinutes)
	for i := range starts {
		starts[i] = last.Add(-time.Duration(RecentMinutes-1-i) * time.Minute)
	}
	return starts
}

// Memory keeps per-process totals and the recent minute buckets.
type Memory struct {
	mu      sync.Mutex
	totals  Minute
	minutes map[int64]*Minute
	now     func() time.Time
}

// NewMemory returns an empty in-process recorder.
func NewMemory() *Memory {
	return &Memory{minutes: make(map[int64]*Minute), now: time.Now}
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = m.now()
	}
	start := at.UTC().Truncate(time.Minute)

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.minutes[start.Unix()]
	if !ok {
		b = &Minute{Start: start}
		m.minutes[start.Unix()] = b
	}
	if ev.Allowed {
		m.totals.Allowed++
		b.Allowed++
	} else {
		m.totals.Denied++
		b.Denied++
	}

	oldest := start.Add(-(RecentMinutes - 1) * time.Minute).Unix()
	for k := range m.minutes {
		if k < oldest {
			delete(m.minutes, k)
		}
	}
	return nil
}

func (m *Memory) Snapshot(context.Context) (Totals, error) {
	starts := recentStarts(m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	t := Totals{Allowed: m.totals.Allowed, Denied: m.totals.Denied}
	for _, s := range starts {
		if b, ok := m.minutes[s.Unix()]; ok {
			t.Recent = append(t.Recent, *b)
		}
	}
	return t, nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
func (Nop) Snapshot(context.Context) (Totals, error) { return Totals{}, nil }
