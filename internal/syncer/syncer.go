// Package syncer orchestrates the sync pipeline: per job it acquires the run
// lock, refreshes reference data, plans work units and fans them out to a
// bounded worker pool, then runs cost allocation over the fresh ledger.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	allocationdomain "github.com/azerion/cloudledger/internal/allocation/domain"
	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
	"github.com/azerion/cloudledger/internal/clock"
	obsmetrics "github.com/azerion/cloudledger/internal/observability/metrics"
	"github.com/azerion/cloudledger/internal/planner"
	"github.com/azerion/cloudledger/internal/provider"
	"github.com/azerion/cloudledger/internal/runlock"
	"github.com/azerion/cloudledger/internal/servicetype"
	synchistorydomain "github.com/azerion/cloudledger/internal/synchistory/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const allocationJobName = "cost_allocation"

var ErrInvalidConfig = errors.New("syncer: invalid configuration")

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Planner  *planner.Planner
	History  synchistorydomain.Repository
	Merger   canonicaldomain.Service
	Cache    *servicetype.Cache
	Adapters *provider.Registry
	Secrets  provider.SecretSource
	Locker   runlock.Locker

	AllocationSvc  allocationdomain.Service
	AllocationRepo allocationdomain.Repository

	Config Config `optional:"true"`
}

type Syncer struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	genID    *snowflake.Node
	planner  *planner.Planner
	history  synchistorydomain.Repository
	merger   canonicaldomain.Service
	cache    *servicetype.Cache
	adapters *provider.Registry
	secrets  provider.SecretSource
	locker   runlock.Locker

	allocationSvc  allocationdomain.Service
	allocationRepo allocationdomain.Repository
}

func New(p Params) (*Syncer, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Planner == nil ||
		p.History == nil || p.Merger == nil || p.Cache == nil || p.Adapters == nil ||
		p.Secrets == nil || p.Locker == nil || p.AllocationSvc == nil || p.AllocationRepo == nil {
		return nil, ErrInvalidConfig
	}
	return &Syncer{
		log:            p.Log.Named("syncer").With(zap.String("component", "syncer")),
		cfg:            p.Config.withDefaults(),
		clock:          p.Clock,
		genID:          p.GenID,
		planner:        p.Planner,
		history:        p.History,
		merger:         p.Merger,
		cache:          p.Cache,
		adapters:       p.Adapters,
		secrets:        p.Secrets,
		locker:         p.Locker,
		allocationSvc:  p.AllocationSvc,
		allocationRepo: p.AllocationRepo,
	}, nil
}

// RunOnce executes one full pass: every enabled sync job, then allocation.
// Job failures are joined, never short-circuited.
func (s *Syncer) RunOnce(ctx context.Context) error {
	var err error
	for _, job := range s.cfg.Jobs {
		if !job.Enabled {
			continue
		}
		err = errors.Join(err, s.runLocked(ctx, job.Name, func(jctx context.Context) error {
			return s.syncJob(jctx, job.WithDefaults())
		}))
	}

	err = errors.Join(err, s.runLocked(ctx, allocationJobName, s.allocationJob))
	return err
}

func (s *Syncer) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	syncMetrics := obsmetrics.Sync()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			syncMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sync pass failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runLocked wraps one job execution with run-level mutual exclusion, metrics
// and run logging. A job whose previous run still holds the lock is skipped,
// not queued.
func (s *Syncer) runLocked(parent context.Context, name string, fn func(ctx context.Context) error) error {
	syncMetrics := obsmetrics.Sync()
	lockKey := "cloudledger:sync:" + name

	token, acquired, err := s.locker.TryLock(parent, lockKey, s.cfg.LockTTL)
	if err != nil {
		s.log.Error("run lock unavailable",
			zap.String("job", name),
			zap.Error(err),
		)
		syncMetrics.IncJobError(name, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	if !acquired {
		syncMetrics.IncJobLockSkipped(name)
		s.log.Info("skipping run, previous run still holds the lock",
			zap.String("job", name),
		)
		return nil
	}
	defer func() {
		if releaseErr := s.locker.Release(parent, lockKey, token); releaseErr != nil {
			s.log.Warn("run lock release failed",
				zap.String("job", name),
				zap.Error(releaseErr),
			)
		}
	}()

	start := time.Now()
	syncMetrics.IncJobRun(name)

	err = fn(parent)
	syncMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil {
		syncMetrics.IncJobError(name, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *Syncer) syncJob(ctx context.Context, job planner.JobConfig) error {
	run := s.newJobRun(job.Name)
	s.logJobStart(run)
	defer s.logJobFinish(run)

	// Reference data is refreshed once per run, before fan-out, so every unit
	// in the run categorizes against the same snapshot.
	if err := s.cache.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh service types: %w", err)
	}

	units, err := s.planner.Plan(ctx, planner.PlanRequest{
		Job:          job,
		ResourceKeys: job.ResourceKeys,
		Now:          s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	run.unitCount = len(units)
	if len(units) == 0 {
		return nil
	}

	adapter, err := s.adapters.Lookup(job.Provider)
	if err != nil {
		return err
	}
	creds, err := s.secrets.Resolve(ctx, job.SecretPath)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(job.Concurrency)
	for _, unit := range units {
		g.Go(func() error {
			// A failed unit is recorded and the run continues; only context
			// cancellation stops the pool.
			s.runUnit(gctx, job, adapter, creds, unit, run)
			return nil
		})
	}
	_ = g.Wait()

	if failed := run.errorCount.Load(); failed > 0 {
		return fmt.Errorf("%d of %d work units failed", failed, len(units))
	}
	return nil
}

func (s *Syncer) runUnit(ctx context.Context, job planner.JobConfig, adapter provider.FetchAdapter, creds provider.Credentials, unit planner.WorkUnit, run *jobRun) {
	syncMetrics := obsmetrics.Sync()
	unitStart := time.Now()

	uctx, cancel := context.WithTimeout(ctx, job.FetchTimeout)
	defer cancel()

	retry := s.cfg.Retry
	retry.MaxElapsed = job.MaxPollWait

	rows, err := provider.FetchWithRetry(uctx, adapter, unit.ResourceKey, unit.Window, creds, retry, s.log)
	if err == nil {
		_, err = s.merger.Merge(uctx, job.Provider, rows)
	}
	syncMetrics.ObserveUnitDuration(job.Name, time.Since(unitStart))

	// Outcome recording must survive the unit deadline, otherwise a timed-out
	// unit would never gain a FAIL record and would not be retried.
	outcome := synchistorydomain.Outcome{
		JobName:                 job.Name,
		ResourceKey:             unit.ResourceKey,
		Window:                  unit.Window,
		Success:                 err == nil,
		Err:                     err,
		ResetFailCountOnSuccess: job.ResetFailCountOnSuccess,
	}
	if recordErr := s.history.RecordOutcome(context.WithoutCancel(ctx), outcome); recordErr != nil {
		s.log.Error("sync.outcome.record_failed",
			zap.String("job", job.Name),
			zap.String("resource_key", unit.ResourceKey),
			zap.Error(recordErr),
		)
	}

	if err != nil {
		run.IncError()
		syncMetrics.IncUnitOutcome(job.Name, obsmetrics.UnitOutcomeFailure)
		s.log.Warn("sync.unit.failed",
			zap.String("job", job.Name),
			zap.String("resource_key", unit.ResourceKey),
			zap.Time("window_start", unit.Window.Start),
			zap.Time("window_end", unit.Window.End),
			zap.Error(err),
		)
		return
	}

	run.AddProcessed(len(rows))
	syncMetrics.IncUnitOutcome(job.Name, obsmetrics.UnitOutcomeSuccess)
}

// allocationJob recomputes customer daily costs for every enabled target over
// the rolling allocation window. Targets are independent; one failing target
// does not stop the rest.
func (s *Syncer) allocationJob(ctx context.Context) error {
	run := s.newJobRun(allocationJobName)
	s.logJobStart(run)
	defer s.logJobFinish(run)

	targets, err := s.allocationRepo.ListEnabledTargets(ctx)
	if err != nil {
		return fmt.Errorf("list allocation targets: %w", err)
	}
	run.unitCount = len(targets)

	now := s.clock.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -(s.cfg.AllocationLookbackDays - 1))

	var jobErr error
	for _, target := range targets {
		rows, allocErr := s.allocationSvc.Allocate(ctx, allocationdomain.AllocateRequest{
			ProductID:        target.ProductID,
			OrganizationID:   target.OrganizationID,
			OrganizationName: target.OrganizationName,
			CustomerName:     target.CustomerName,
			IsInternalOrg:    target.IsInternal,
			IsExceptionalOrg: target.IsExceptional,
			Start:            start,
			End:              end,
		})
		if allocErr != nil {
			run.IncError()
			s.log.Warn("allocation.target.failed",
				zap.String("organization_id", target.OrganizationID),
				zap.String("customer", target.CustomerName),
				zap.Error(allocErr),
			)
			jobErr = errors.Join(jobErr, allocErr)
			continue
		}
		run.AddProcessed(len(rows))
	}
	return jobErr
}
