package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// ExecutionRepository implements report.ExecutionRepository on
// PostgreSQL. The scheduled-trigger dedup guard is a partial unique
// index on (report_config_id, period_key) for schedule-triggered rows,
// so at-most-one-trigger-per-period holds across scheduler replicas
// without in-memory locking.
type ExecutionRepository struct {
	db *pgxpool.Pool
}

// NewExecutionRepository creates a new PostgreSQL execution repository
func NewExecutionRepository(db *pgxpool.Pool) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const executionColumns = `
	id, report_config_id, organization_id, status, triggered_by, period_key,
	created_at, started_at, completed_at, error, failed_step, export_result, download_url`

const insertExecution = `
	INSERT INTO report_executions (` + executionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (r *ExecutionRepository) Create(ctx context.Context, exec *report.Execution) error {
	args, err := executionArgs(exec)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, insertExecution, args...); err != nil {
		return errors.NewInternalError("failed to store execution").WithCause(err)
	}
	return nil
}

// CreateScheduled inserts a scheduled execution, relying on the unique
// constraint to reject a duplicate trigger for the same period.
func (r *ExecutionRepository) CreateScheduled(ctx context.Context, exec *report.Execution) error {
	args, err := executionArgs(exec)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, insertExecution+` ON CONFLICT DO NOTHING`, args...)
	if err != nil {
		return errors.NewInternalError("failed to store scheduled execution").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewConcurrencyError("execution already triggered for this schedule period")
	}
	return nil
}

// UpdateStatus persists a transition conditionally on the stored status
// still being the origin state. A concurrent writer that already moved
// the execution on loses the race and gets a ConcurrencyError; terminal
// states can never be clobbered.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, exec *report.Execution, from report.ExecutionStatus) error {
	var exportResult []byte
	if exec.ExportResult != nil {
		var err error
		exportResult, err = json.Marshal(exec.ExportResult)
		if err != nil {
			return errors.NewInternalError("failed to marshal export result").WithCause(err)
		}
	}

	query := `
		UPDATE report_executions
		SET status = $3, started_at = $4, completed_at = $5, error = $6,
		    failed_step = $7, export_result = $8, download_url = $9
		WHERE id = $1 AND organization_id = $2 AND status = $10`

	tag, err := r.db.Exec(ctx, query,
		exec.ID, exec.OrganizationID, string(exec.Status),
		exec.StartedAt, exec.CompletedAt, exec.Error,
		exec.FailedStep, exportResult, exec.DownloadURL,
		string(from),
	)
	if err != nil {
		return errors.NewInternalError("failed to update execution status").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewConcurrencyError("execution status changed concurrently")
	}
	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*report.Execution, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM report_executions
		 WHERE id = $1 AND organization_id = $2`,
		id, orgID)

	exec, err := scanExecution(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NewNotFoundError("report execution")
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to load execution").WithCause(err)
	}
	return exec, nil
}

func (r *ExecutionRepository) ListByConfig(ctx context.Context, orgID, configID uuid.UUID, limit, offset int) ([]*report.Execution, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+executionColumns+` FROM report_executions
		 WHERE organization_id = $1 AND report_config_id = $2
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		orgID, configID, limit, offset)
	if err != nil {
		return nil, errors.NewInternalError("failed to list executions").WithCause(err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func (r *ExecutionRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*report.Execution, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+executionColumns+` FROM report_executions
		 WHERE organization_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		orgID, limit, offset)
	if err != nil {
		return nil, errors.NewInternalError("failed to list executions").WithCause(err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// helpers

func executionArgs(exec *report.Execution) ([]interface{}, error) {
	var exportResult []byte
	if exec.ExportResult != nil {
		var err error
		exportResult, err = json.Marshal(exec.ExportResult)
		if err != nil {
			return nil, errors.NewInternalError("failed to marshal export result").WithCause(err)
		}
	}
	// period_key, error, failed_step, and download_url are NOT NULL with
	// an empty-string default; the dedup index predicate keys on
	// period_key <> '', so empty binds as '' rather than NULL.
	return []interface{}{
		exec.ID, exec.ReportConfigID, exec.OrganizationID, string(exec.Status),
		string(exec.TriggeredBy), exec.PeriodKey,
		exec.CreatedAt, exec.StartedAt, exec.CompletedAt,
		exec.Error, exec.FailedStep,
		exportResult, exec.DownloadURL,
	}, nil
}

func scanExecution(row pgx.Row) (*report.Execution, error) {
	var exec report.Execution
	var status, triggeredBy string
	var exportResult []byte

	err := row.Scan(
		&exec.ID, &exec.ReportConfigID, &exec.OrganizationID, &status, &triggeredBy,
		&exec.PeriodKey, &exec.CreatedAt, &exec.StartedAt, &exec.CompletedAt,
		&exec.Error, &exec.FailedStep, &exportResult, &exec.DownloadURL,
	)
	if err != nil {
		return nil, err
	}

	exec.Status = report.ExecutionStatus(status)
	exec.TriggeredBy = report.TriggerSource(triggeredBy)

	if len(exportResult) > 0 {
		var result report.ExportResult
		if err := json.Unmarshal(exportResult, &result); err != nil {
			return nil, err
		}
		exec.ExportResult = &result
	}
	return &exec, nil
}

func scanExecutions(rows pgx.Rows) ([]*report.Execution, error) {
	executions := make([]*report.Execution, 0)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan execution").WithCause(err)
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate executions").WithCause(err)
	}
	return executions, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
