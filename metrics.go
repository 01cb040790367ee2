package sphereauth

import "github.com/alumnisphere/sphereauth/internal/metrics"

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = metrics.MetricID

const (
	MetricLoginSuccess          = metrics.MetricLoginSuccess
	MetricLoginFailure          = metrics.MetricLoginFailure
	MetricSignupSuccess         = metrics.MetricSignupSuccess
	MetricSignupDuplicate       = metrics.MetricSignupDuplicate
	MetricSignupConflict        = metrics.MetricSignupConflict
	MetricLogout                = metrics.MetricLogout
	MetricSessionRestored       = metrics.MetricSessionRestored
	MetricSessionRestoreEmpty   = metrics.MetricSessionRestoreEmpty
	MetricSessionRestoreCorrupt = metrics.MetricSessionRestoreCorrupt
	MetricStorageError          = metrics.MetricStorageError
	MetricRequestSubmitted      = metrics.MetricRequestSubmitted
)

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot = metrics.Snapshot
