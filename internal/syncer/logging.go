package syncer

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// jobRun carries bookkeeping for one job execution. Counters are atomic
// because work units update them from the fan-out goroutines.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time

	unitCount      int
	processedCount atomic.Int64
	errorCount     atomic.Int64
}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount.Add(int64(count))
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount.Add(1)
}

func (s *Syncer) newJobRun(job string) *jobRun {
	return &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: time.Now(),
	}
}

func (s *Syncer) logJobStart(run *jobRun) {
	if run == nil {
		return
	}
	s.log.Info("sync.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
	)
}

func (s *Syncer) logJobFinish(run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("unit_count", run.unitCount),
		zap.Int64("processed_count", run.processedCount.Load()),
		zap.Int64("error_count", run.errorCount.Load()),
	}
	if run.errorCount.Load() > 0 {
		s.log.Warn("sync.job.finish", fields...)
		return
	}
	s.log.Info("sync.job.finish", fields...)
}
