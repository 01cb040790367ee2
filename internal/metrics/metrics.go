// Package metrics provides lock-free counters for session-core
// observability.
//
// Counters are incremented atomically and read through point-in-time
// snapshots. The package performs no I/O and exposes no global registry;
// exporting snapshots is the caller's concern.
package metrics

import "sync/atomic"

// MetricID identifies one counter.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricSignupSuccess
	MetricSignupDuplicate
	MetricSignupConflict
	MetricLogout
	MetricSessionRestored
	MetricSessionRestoreEmpty
	MetricSessionRestoreCorrupt
	MetricStorageError
	MetricRequestSubmitted

	MetricIDCount
)

// Metrics holds atomic counters. A nil *Metrics, or one built with
// Enabled=false, turns every operation into a no-op.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]atomic.Uint64
}

// Config controls metric collection.
type Config struct {
	Enabled bool
}

// New creates a Metrics instance.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot returns a deep copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[MetricID]uint64, MetricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
