// Package planner turns lookback policy and sync history into the set of
// work units for one job run. Planning is pure computation plus history
// reads; execution lives in the syncer so the planner stays testable
// without any worker machinery.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azerion/cloudledger/internal/partition"
	synchistorydomain "github.com/azerion/cloudledger/internal/synchistory/domain"
	"go.uber.org/zap"
)

// WorkUnit is one (resource key, date window) pair to fetch and merge.
// Units are ephemeral: planned fresh each run, never persisted.
type WorkUnit struct {
	ResourceKey string
	Window      partition.Window
}

// PlanRequest describes one job run to plan.
type PlanRequest struct {
	Job          JobConfig
	ResourceKeys []string
	// ExplicitStart forces a full resync from the given date.
	ExplicitStart *time.Time
	Now           time.Time
}

var ErrInvalidPlanRequest = errors.New("invalid_plan_request")

type Planner struct {
	history synchistorydomain.Repository
	log     *zap.Logger
}

func New(history synchistorydomain.Repository, log *zap.Logger) *Planner {
	return &Planner{
		history: history,
		log:     log.Named("planner"),
	}
}

// Plan computes the work units for one run: per-key lookback windows plus
// retry candidates under the fail cap, de-duplicated by (key, window). The
// result is an unordered set; execution order must not matter because every
// downstream write is an upsert by natural key.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) ([]WorkUnit, error) {
	if req.Job.Name == "" {
		return nil, fmt.Errorf("%w: job name is required", ErrInvalidPlanRequest)
	}
	if req.Now.IsZero() {
		return nil, fmt.Errorf("%w: now is required", ErrInvalidPlanRequest)
	}
	if req.ExplicitStart != nil && req.ExplicitStart.After(req.Now) {
		return nil, fmt.Errorf("%w: explicit start date is in the future", ErrInvalidPlanRequest)
	}
	if len(req.ResourceKeys) == 0 {
		return nil, nil
	}

	job := req.Job.WithDefaults()
	now := req.Now.UTC()

	units := make([]WorkUnit, 0, len(req.ResourceKeys))
	seen := make(map[string]struct{})

	for _, key := range req.ResourceKeys {
		days, mode, err := p.lookbackDays(ctx, job, key, req.ExplicitStart, now)
		if err != nil {
			return nil, err
		}

		windows := partition.Split(days, job.MaxWindowDays, now)
		p.log.Debug("planned resource key",
			zap.String("job", job.Name),
			zap.String("resource_key", key),
			zap.String("mode", mode),
			zap.Int("lookback_days", days),
			zap.Int("windows", len(windows)),
		)

		for _, window := range windows {
			id := unitID(key, window)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			units = append(units, WorkUnit{ResourceKey: key, Window: window})
		}
	}

	// Failed units below the cap are re-queued unless the fresh plan already
	// covers the exact same window.
	retries, err := p.history.FindRetryCandidates(ctx, job.Name, req.ResourceKeys, job.RetryFailCap)
	if err != nil {
		return nil, err
	}
	for _, record := range retries {
		window := record.Window()
		id := unitID(record.ResourceKey, window)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		units = append(units, WorkUnit{ResourceKey: record.ResourceKey, Window: window})
	}

	return units, nil
}

// lookbackDays picks the per-key lookback by priority: explicit resync,
// first-sync backfill, early-month correction, rolling window.
func (p *Planner) lookbackDays(ctx context.Context, job JobConfig, key string, explicitStart *time.Time, now time.Time) (int, string, error) {
	if explicitStart != nil {
		return daysBetween(*explicitStart, now), "explicit_resync", nil
	}

	succeeded, err := p.history.HasEverSucceeded(ctx, job.Name, key)
	if err != nil {
		return 0, "", err
	}
	if !succeeded {
		if job.InceptionDate != nil && job.InceptionDate.Before(now) {
			return daysBetween(*job.InceptionDate, now), "backfill_inception", nil
		}
		return job.BackfillDays, "backfill", nil
	}

	if now.Day() <= job.MonthCorrectionDays {
		prevMonthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return daysBetween(prevMonthStart, now), "month_correction", nil
	}

	days := now.Day()
	if days > job.RollingWindowDays {
		days = job.RollingWindowDays
	}
	return days, "rolling", nil
}

func daysBetween(start, end time.Time) int {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(endDay.Sub(startDay).Hours()/24) + 1
}

func unitID(key string, window partition.Window) string {
	return fmt.Sprintf("%s|%s|%s", key, window.Start.Format(time.DateOnly), window.End.Format(time.DateOnly))
}
