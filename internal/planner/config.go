package planner

import (
	"time"

	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
)

// JobConfig carries the per-job sync policy. Backfill depth and window size
// differ per provider because export query cost and latency differ; they are
// configuration, never process-wide constants.
type JobConfig struct {
	Name           string
	Provider       canonicaldomain.Provider
	Enabled        bool
	CronExpression string
	SecretPath     string
	ResourceKeys   []string

	// MaxWindowDays bounds each planned date window; smaller for providers
	// whose exports are slow or rate-limited.
	MaxWindowDays int

	// RetryFailCap excludes a failed unit from automatic retry once its
	// fail count reaches the cap.
	RetryFailCap int

	// BackfillDays is the lookback for a resource key that has never
	// succeeded; InceptionDate, when set, wins and backfills from a fixed
	// date instead.
	BackfillDays  int
	InceptionDate *time.Time

	// RollingWindowDays caps the steady-state incremental lookback.
	RollingWindowDays int

	// MonthCorrectionDays widens the lookback to the start of the previous
	// month while the current month is at most this many days old, catching
	// late-arriving prior-month corrections.
	MonthCorrectionDays int

	Concurrency             int
	FetchTimeout            time.Duration
	MaxPollWait             time.Duration
	ResetFailCountOnSuccess bool
}

// DefaultJobConfig returns the baseline sync policy.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Enabled:             true,
		MaxWindowDays:       10,
		RetryFailCap:        3,
		BackfillDays:        365,
		RollingWindowDays:   10,
		MonthCorrectionDays: 5,
		Concurrency:         2,
		FetchTimeout:        10 * time.Minute,
		MaxPollWait:         15 * time.Minute,
	}
}

// WithDefaults normalizes zero or out-of-range fields.
func (c JobConfig) WithDefaults() JobConfig {
	defaults := DefaultJobConfig()
	if c.MaxWindowDays <= 0 {
		c.MaxWindowDays = defaults.MaxWindowDays
	}
	if c.RetryFailCap <= 0 {
		c.RetryFailCap = defaults.RetryFailCap
	}
	if c.BackfillDays <= 0 {
		c.BackfillDays = defaults.BackfillDays
	}
	if c.RollingWindowDays <= 0 {
		c.RollingWindowDays = defaults.RollingWindowDays
	}
	if c.MonthCorrectionDays <= 0 {
		c.MonthCorrectionDays = defaults.MonthCorrectionDays
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.Concurrency > 5 {
		c.Concurrency = 5
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaults.FetchTimeout
	}
	if c.MaxPollWait <= 0 {
		c.MaxPollWait = defaults.MaxPollWait
	}
	return c
}
