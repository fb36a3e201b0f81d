package reporting

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// Tracker exposes execution history and pending-execution cancellation.
// Executions outlive their configs, so history queries work for deleted
// configs too.
type Tracker struct {
	executions report.ExecutionRepository
	logger     *zap.Logger
}

// NewTracker creates an execution tracker
func NewTracker(executions report.ExecutionRepository, logger *zap.Logger) *Tracker {
	return &Tracker{executions: executions, logger: logger}
}

// Get returns one execution scoped to the organization.
func (t *Tracker) Get(ctx context.Context, orgID, id uuid.UUID) (*report.Execution, error) {
	return t.executions.GetByID(ctx, orgID, id)
}

// ListByConfig returns execution history for one config, newest first.
func (t *Tracker) ListByConfig(ctx context.Context, orgID, configID uuid.UUID, limit, offset int) ([]*report.Execution, error) {
	return t.executions.ListByConfig(ctx, orgID, configID, limit, offset)
}

// ListByOrganization returns the organization's execution history.
func (t *Tracker) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*report.Execution, error) {
	return t.executions.ListByOrganization(ctx, orgID, limit, offset)
}

// Cancel cancels an execution that has not started running. A race with
// a worker claiming it surfaces as a ConcurrencyError; running
// executions cancel cooperatively via their pipeline context instead.
func (t *Tracker) Cancel(ctx context.Context, orgID, id uuid.UUID) (*report.Execution, error) {
	exec, err := t.executions.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if exec.Status != report.StatusPending {
		return nil, errors.NewValidationError("NOT_CANCELLABLE",
			"only pending executions can be cancelled directly")
	}

	if err := exec.Cancel(); err != nil {
		return nil, err
	}
	if err := t.executions.UpdateStatus(ctx, exec, report.StatusPending); err != nil {
		return nil, err
	}

	t.logger.Info("execution cancelled",
		zap.String("execution_id", id.String()),
		zap.String("org_id", orgID.String()))
	return exec, nil
}
