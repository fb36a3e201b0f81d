package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
)

// ExecutionStatus is the execution state machine:
// PENDING -> RUNNING -> {COMPLETED | FAILED | CANCELLED}.
// Terminal states accept no further transitions.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TriggerSource records how an execution was started
type TriggerSource string

const (
	TriggerSchedule TriggerSource = "schedule"
	TriggerManual   TriggerSource = "manual"
)

// ExportResult summarizes the encoded artifact produced by an execution
type ExportResult struct {
	Filename    string `json:"filename"`
	DataSize    int64  `json:"data_size"`
	RecordCount int    `json:"record_count"`
}

// Execution is one concrete run of a report config, or an ad-hoc run.
// Executions are auditable artifacts: they outlive their parent config
// and are never deleted when the config is.
type Execution struct {
	ID             uuid.UUID       `json:"id"`
	ReportConfigID *uuid.UUID      `json:"report_config_id,omitempty"` // nil for fully ad-hoc runs
	OrganizationID uuid.UUID       `json:"organization_id"`
	Status         ExecutionStatus `json:"status"`
	TriggeredBy    TriggerSource   `json:"triggered_by"`
	PeriodKey      string          `json:"period_key,omitempty"` // empty for manual triggers
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Error          string          `json:"error,omitempty"`
	FailedStep     string          `json:"failed_step,omitempty"`
	ExportResult   *ExportResult   `json:"export_result,omitempty"`
	DownloadURL    string          `json:"download_url,omitempty"`
}

// NewExecution creates a pending execution record.
func NewExecution(configID *uuid.UUID, orgID uuid.UUID, trigger TriggerSource, periodKey string) (*Execution, error) {
	if orgID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ORGANIZATION_ID", "organization ID is required")
	}
	if trigger == TriggerSchedule && periodKey == "" {
		return nil, errors.NewValidationError("MISSING_PERIOD_KEY",
			"scheduled executions require a period key")
	}
	return &Execution{
		ID:             uuid.New(),
		ReportConfigID: configID,
		OrganizationID: orgID,
		Status:         StatusPending,
		TriggeredBy:    trigger,
		PeriodKey:      periodKey,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

var allowedTransitions = map[ExecutionStatus][]ExecutionStatus{
	StatusPending: {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether the state machine allows moving to next.
func (e *Execution) CanTransition(next ExecutionStatus) bool {
	for _, allowed := range allowedTransitions[e.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (e *Execution) transition(next ExecutionStatus) error {
	if !e.CanTransition(next) {
		return errors.NewValidationError("INVALID_TRANSITION",
			fmt.Sprintf("cannot transition execution from %s to %s", e.Status, next))
	}
	e.Status = next
	return nil
}

// Start moves the execution to RUNNING and records the start time.
func (e *Execution) Start() error {
	if err := e.transition(StatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.StartedAt = &now
	return nil
}

// Complete moves the execution to COMPLETED with its results.
func (e *Execution) Complete(result *ExportResult, downloadURL string) error {
	if err := e.transition(StatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.CompletedAt = &now
	e.ExportResult = result
	e.DownloadURL = downloadURL
	return nil
}

// Fail moves the execution to FAILED. Failure is still a completion in
// time: CompletedAt is set. The failing step and terminal cause are
// preserved for operator diagnosis.
func (e *Execution) Fail(step string, cause error) error {
	if err := e.transition(StatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.CompletedAt = &now
	e.FailedStep = step
	if cause != nil {
		e.Error = cause.Error()
	}
	return nil
}

// Cancel moves the execution to CANCELLED at a cooperative checkpoint.
func (e *Execution) Cancel() error {
	if err := e.transition(StatusCancelled); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.CompletedAt = &now
	return nil
}
