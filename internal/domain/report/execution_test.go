package report

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
)

func TestNewExecution(t *testing.T) {
	orgID := uuid.New()
	configID := uuid.New()

	t.Run("scheduled execution", func(t *testing.T) {
		exec, err := NewExecution(&configID, orgID, TriggerSchedule, "2025-07")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, exec.Status)
		assert.Equal(t, TriggerSchedule, exec.TriggeredBy)
		assert.Equal(t, "2025-07", exec.PeriodKey)
		assert.Equal(t, &configID, exec.ReportConfigID)
		assert.NotEqual(t, uuid.Nil, exec.ID)
		assert.False(t, exec.CreatedAt.IsZero())
	})

	t.Run("manual execution needs no period key", func(t *testing.T) {
		exec, err := NewExecution(&configID, orgID, TriggerManual, "")
		require.NoError(t, err)
		assert.Empty(t, exec.PeriodKey)
	})

	t.Run("ad-hoc execution has no config", func(t *testing.T) {
		exec, err := NewExecution(nil, orgID, TriggerManual, "")
		require.NoError(t, err)
		assert.Nil(t, exec.ReportConfigID)
	})

	t.Run("scheduled execution requires a period key", func(t *testing.T) {
		_, err := NewExecution(&configID, orgID, TriggerSchedule, "")
		require.Error(t, err)
		var appErr *errors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "MISSING_PERIOD_KEY", appErr.Code)
	})

	t.Run("missing organization", func(t *testing.T) {
		_, err := NewExecution(&configID, uuid.Nil, TriggerManual, "")
		assert.Error(t, err)
	})
}

func TestExecution_Transitions(t *testing.T) {
	orgID := uuid.New()

	newExec := func(t *testing.T) *Execution {
		exec, err := NewExecution(nil, orgID, TriggerManual, "")
		require.NoError(t, err)
		return exec
	}

	t.Run("full lifecycle through completion", func(t *testing.T) {
		exec := newExec(t)

		require.NoError(t, exec.Start())
		assert.Equal(t, StatusRunning, exec.Status)
		require.NotNil(t, exec.StartedAt)

		result := &ExportResult{Filename: "report.json.gz", DataSize: 2048, RecordCount: 12}
		require.NoError(t, exec.Complete(result, "s3://reports/report.json.gz"))
		assert.Equal(t, StatusCompleted, exec.Status)
		assert.Equal(t, result, exec.ExportResult)
		assert.Equal(t, "s3://reports/report.json.gz", exec.DownloadURL)
		require.NotNil(t, exec.CompletedAt)
	})

	t.Run("fail records step and cause with a completion time", func(t *testing.T) {
		exec := newExec(t)
		require.NoError(t, exec.Start())

		require.NoError(t, exec.Fail("deliver", fmt.Errorf("relay unavailable")))
		assert.Equal(t, StatusFailed, exec.Status)
		assert.Equal(t, "deliver", exec.FailedStep)
		assert.Equal(t, "relay unavailable", exec.Error)
		require.NotNil(t, exec.CompletedAt)
	})

	t.Run("cancel from pending and from running", func(t *testing.T) {
		pending := newExec(t)
		require.NoError(t, pending.Cancel())
		assert.Equal(t, StatusCancelled, pending.Status)

		running := newExec(t)
		require.NoError(t, running.Start())
		require.NoError(t, running.Cancel())
		assert.Equal(t, StatusCancelled, running.Status)
		require.NotNil(t, running.CompletedAt)
	})

	t.Run("complete requires running", func(t *testing.T) {
		exec := newExec(t)
		err := exec.Complete(nil, "")
		require.Error(t, err)
		var appErr *errors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "INVALID_TRANSITION", appErr.Code)
		assert.Equal(t, StatusPending, exec.Status)
	})

	t.Run("terminal states accept no further transitions", func(t *testing.T) {
		terminal := map[string]func(e *Execution){
			"completed": func(e *Execution) {
				require.NoError(t, e.Start())
				require.NoError(t, e.Complete(nil, ""))
			},
			"failed": func(e *Execution) {
				require.NoError(t, e.Start())
				require.NoError(t, e.Fail("generate", fmt.Errorf("boom")))
			},
			"cancelled": func(e *Execution) {
				require.NoError(t, e.Cancel())
			},
		}

		for name, reach := range terminal {
			t.Run(name, func(t *testing.T) {
				exec := newExec(t)
				reach(exec)
				assert.True(t, exec.Status.IsTerminal())

				assert.Error(t, exec.Start())
				assert.Error(t, exec.Complete(nil, ""))
				assert.Error(t, exec.Fail("x", fmt.Errorf("x")))
				assert.Error(t, exec.Cancel())
			})
		}
	})
}
