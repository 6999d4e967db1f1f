package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type jobRun struct {
	mu         sync.Mutex
	runID      string
	startedAt  time.Time
	due        int
	processed  int
	skipped    int
	errorCount int
}

func (s *Scheduler) newJobRun(due int) *jobRun {
	return &jobRun{runID: uuid.NewString(), startedAt: s.clock.Now(), due: due}
}

func (r *jobRun) AddProcessed() {
	r.mu.Lock()
	r.processed++
	r.mu.Unlock()
}

func (r *jobRun) AddSkipped() {
	r.mu.Lock()
	r.skipped++
	r.mu.Unlock()
}

func (r *jobRun) IncError() {
	r.mu.Lock()
	r.errorCount++
	r.mu.Unlock()
}

func (s *Scheduler) logJobStart(run *jobRun) {
	s.log.Info("scheduler.job.start",
		zap.String("run_id", run.runID),
		zap.Int("due_accounts", run.due),
		zap.Int("concurrency", s.cfg.Concurrency),
	)
}

func (s *Scheduler) logJobFinish(run *jobRun) {
	run.mu.Lock()
	fields := []zap.Field{
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("skipped_count", run.skipped),
		zap.Int("error_count", run.errorCount),
	}
	errorCount := run.errorCount
	run.mu.Unlock()

	if errorCount > 0 {
		s.log.Warn("scheduler.job.finish", fields...)
		return
	}
	s.log.Info("scheduler.job.finish", fields...)
}
