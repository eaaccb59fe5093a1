package monitoring

import (
	"time"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
)

// Config carries the detection thresholds, severity bands and response
// toggles for the engine.
type Config struct {
	// Rapid-submission detector
	RapidWindow    time.Duration
	RapidThreshold int

	// Duplicate-document detector
	DuplicateWindow    time.Duration
	DuplicateThreshold int

	// Failed-verification detector
	FailedWindow    time.Duration
	FailedThreshold int

	// Network-anomaly detector: minimum summed indicator risk to emit
	NetworkThreshold float64

	// Behavioral-anomaly detector: minimum mean deviation to emit
	BehavioralThreshold float64

	// Location-consistency trailing window
	LocationWindow time.Duration

	// Risk-score cutoffs consulted wherever severity is derived from a
	// score (network and behavioral detectors)
	SeverityBands activity.SeverityBands

	// Automated response toggles
	AutoBlock      bool
	AutoEscalate   bool
	RealTimeAlerts bool

	// Alert suppression window per subject+type
	AlertCooldown time.Duration

	// Side-effect worker pool
	ActionWorkers int
	ActionTimeout time.Duration

	// Notification throttle (events per second, with equal burst)
	NotifyRate float64

	// Baseline store
	BaselineCapacity int

	Sweeps SweepConfig
}

// SweepConfig holds the scheduler's per-job intervals and bounds.
type SweepConfig struct {
	RapidInterval      time.Duration
	DuplicateInterval  time.Duration
	FailedInterval     time.Duration
	BehavioralInterval time.Duration
	PruneInterval      time.Duration

	// Soft timeout applied to each sweep run
	Timeout time.Duration

	// Baselines idle longer than this are pruned
	BaselineMaxIdle time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		RapidWindow:         time.Hour,
		RapidThreshold:      5,
		DuplicateWindow:     24 * time.Hour,
		DuplicateThreshold:  2,
		FailedWindow:        24 * time.Hour,
		FailedThreshold:     3,
		NetworkThreshold:    1.0,
		BehavioralThreshold: 0.7,
		LocationWindow:      7 * 24 * time.Hour,
		SeverityBands:       activity.DefaultSeverityBands(),
		AutoBlock:           false,
		AutoEscalate:        true,
		RealTimeAlerts:      true,
		AlertCooldown:       30 * time.Minute,
		ActionWorkers:       4,
		ActionTimeout:       10 * time.Second,
		NotifyRate:          5,
		BaselineCapacity:    10,
		Sweeps: SweepConfig{
			RapidInterval:      5 * time.Minute,
			DuplicateInterval:  10 * time.Minute,
			FailedInterval:     15 * time.Minute,
			BehavioralInterval: 30 * time.Minute,
			PruneInterval:      24 * time.Hour,
			Timeout:            2 * time.Minute,
			BaselineMaxIdle:    30 * 24 * time.Hour,
		},
	}
}
