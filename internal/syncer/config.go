package syncer

import (
	"os"
	"strings"
	"time"

	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
	"github.com/azerion/cloudledger/internal/planner"
	"github.com/azerion/cloudledger/internal/provider"
)

// Config controls the run loop and the set of sync jobs.
type Config struct {
	RunInterval time.Duration
	// LockTTL bounds how long a crashed run can keep its job locked.
	LockTTL time.Duration
	// AllocationLookbackDays is the rolling window the allocation job
	// recomputes each run.
	AllocationLookbackDays int
	Retry                  provider.RetryPolicy
	Jobs                   []planner.JobConfig
}

func DefaultConfig() Config {
	return Config{
		RunInterval:            time.Hour,
		LockTTL:                30 * time.Minute,
		AllocationLookbackDays: 10,
		Retry:                  provider.DefaultRetryPolicy(),
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.AllocationLookbackDays <= 0 {
		c.AllocationLookbackDays = defaults.AllocationLookbackDays
	}
	return c
}

// ProvideConfig builds the sync job set from environment variables. A
// provider job is enabled by listing its resource keys, e.g.
// AWS_RESOURCE_KEYS=123456789012,210987654321.
func ProvideConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("SYNC_RUN_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.RunInterval = parsed
		}
	}
	if v := os.Getenv("SYNC_LOCK_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.LockTTL = parsed
		}
	}

	jobs := []struct {
		name     string
		provider canonicaldomain.Provider
		prefix   string
	}{
		{"aws_cost_sync", canonicaldomain.ProviderAWS, "AWS"},
		{"gcp_cost_sync", canonicaldomain.ProviderGCP, "GCP"},
		{"huawei_cost_sync", canonicaldomain.ProviderHuawei, "HUAWEI"},
	}
	for _, j := range jobs {
		if job, ok := jobFromEnv(j.name, j.provider, j.prefix); ok {
			cfg.Jobs = append(cfg.Jobs, job)
		}
	}
	return cfg
}

func jobFromEnv(name string, p canonicaldomain.Provider, prefix string) (planner.JobConfig, bool) {
	keys := splitCSV(os.Getenv(prefix + "_RESOURCE_KEYS"))
	if len(keys) == 0 {
		return planner.JobConfig{}, false
	}

	job := planner.DefaultJobConfig()
	job.Name = name
	job.Provider = p
	job.SecretPath = getenv(prefix+"_SECRET_PATH", prefix+"_BILLING")
	job.ResourceKeys = keys
	return job.WithDefaults(), true
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
