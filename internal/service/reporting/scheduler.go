package reporting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// Scheduler polls enabled configs and triggers the ones whose schedule
// is due. The at-most-one-trigger-per-period guarantee lives in the
// execution store's unique (config, period) constraint, so multiple
// scheduler replicas can tick concurrently.
type Scheduler struct {
	configs      report.ConfigRepository
	executions   report.ExecutionRepository
	pool         *WorkerPool
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewScheduler creates a schedule poller.
func NewScheduler(configs report.ConfigRepository, executions report.ExecutionRepository,
	pool *WorkerPool, pollInterval time.Duration, logger *zap.Logger) *Scheduler {

	return &Scheduler{
		configs:      configs,
		executions:   executions,
		pool:         pool,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("poll_interval", s.pollInterval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now.UTC())
		}
	}
}

// Tick evaluates every enabled config against now. A failure on one
// config never blocks the others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	configs, err := s.configs.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to list enabled configs", zap.Error(err))
		return
	}

	for _, cfg := range configs {
		if err := s.trigger(ctx, cfg, now); err != nil {
			s.logger.Error("failed to trigger scheduled report",
				zap.String("config_id", cfg.ID.String()),
				zap.String("org_id", cfg.OrganizationID.String()),
				zap.Error(err))
		}
	}
}

// trigger fires cfg if its schedule is due and the period has not been
// handled yet.
func (s *Scheduler) trigger(ctx context.Context, cfg *report.Config, now time.Time) error {
	due, err := cfg.Schedule.Matches(now, s.pollInterval)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	periodKey, err := cfg.Schedule.PeriodKey(now)
	if err != nil {
		return err
	}

	exec, err := report.NewExecution(&cfg.ID, cfg.OrganizationID, report.TriggerSchedule, periodKey)
	if err != nil {
		return err
	}

	if err := s.executions.CreateScheduled(ctx, exec); err != nil {
		if errors.IsType(err, errors.ErrorTypeConcurrency) {
			// Another replica (or an earlier tick in the same period)
			// already triggered this one.
			s.logger.Debug("period already triggered",
				zap.String("config_id", cfg.ID.String()),
				zap.String("period_key", periodKey))
			return nil
		}
		return err
	}

	s.logger.Info("scheduled report triggered",
		zap.String("config_id", cfg.ID.String()),
		zap.String("execution_id", exec.ID.String()),
		zap.String("period_key", periodKey))

	if !s.pool.Submit(cfg, exec) {
		s.reject(ctx, exec)
	}
	return nil
}

// reject marks an execution the worker pool could not accept as FAILED
// so it does not sit in PENDING indefinitely. For scheduled runs the
// period row keeps further automatic triggers away; once capacity
// recovers the period can be re-run manually.
func (s *Scheduler) reject(ctx context.Context, exec *report.Execution) {
	cause := errors.NewInternalError("worker pool rejected execution: queue full")
	if err := exec.Fail(stepStart, cause); err != nil {
		s.logger.Error("failed to fail rejected execution",
			zap.String("execution_id", exec.ID.String()), zap.Error(err))
		return
	}
	if err := s.executions.UpdateStatus(ctx, exec, report.StatusPending); err != nil {
		s.logger.Error("failed to persist rejected execution",
			zap.String("execution_id", exec.ID.String()), zap.Error(err))
		return
	}
	s.logger.Error("worker pool rejected execution",
		zap.String("execution_id", exec.ID.String()))
}

// ExecuteNow triggers a config manually, outside its schedule. Manual
// runs carry no period key and are never deduplicated against the
// schedule; they work on disabled configs too.
func (s *Scheduler) ExecuteNow(ctx context.Context, orgID, configID uuid.UUID) (*report.Execution, error) {
	cfg, err := s.configs.GetByID(ctx, orgID, configID)
	if err != nil {
		return nil, err
	}

	exec, err := report.NewExecution(&cfg.ID, orgID, report.TriggerManual, "")
	if err != nil {
		return nil, err
	}
	if err := s.executions.Create(ctx, exec); err != nil {
		return nil, err
	}

	s.logger.Info("manual report triggered",
		zap.String("config_id", configID.String()),
		zap.String("execution_id", exec.ID.String()))

	if !s.pool.Submit(cfg, exec) {
		s.reject(ctx, exec)
	}
	return exec, nil
}
