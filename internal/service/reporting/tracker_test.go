package reporting

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

func TestTracker_Cancel(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	cfg := validConfig(t, orgID, "daily-hipaa", report.ReportTypeHIPAA)

	newPending := func(t *testing.T, repo *memExecRepo) *report.Execution {
		t.Helper()
		exec, err := report.NewExecution(&cfg.ID, orgID, report.TriggerManual, "")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, exec))
		return exec
	}

	t.Run("cancels a pending execution", func(t *testing.T) {
		repo := newMemExecRepo()
		tracker := NewTracker(repo, zaptest.NewLogger(t))
		exec := newPending(t, repo)

		cancelled, err := tracker.Cancel(ctx, orgID, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, report.StatusCancelled, cancelled.Status)
		assert.NotNil(t, cancelled.CompletedAt)

		stored := repo.byID(exec.ID)
		assert.Equal(t, report.StatusCancelled, stored.Status)
	})

	t.Run("rejects cancelling a running execution", func(t *testing.T) {
		repo := newMemExecRepo()
		tracker := NewTracker(repo, zaptest.NewLogger(t))
		exec := newPending(t, repo)

		running := *exec
		require.NoError(t, running.Start())
		require.NoError(t, repo.UpdateStatus(ctx, &running, report.StatusPending))

		_, err := tracker.Cancel(ctx, orgID, exec.ID)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

		stored := repo.byID(exec.ID)
		assert.Equal(t, report.StatusRunning, stored.Status)
	})

	t.Run("rejects cancelling a completed execution", func(t *testing.T) {
		repo := newMemExecRepo()
		tracker := NewTracker(repo, zaptest.NewLogger(t))
		exec := newPending(t, repo)

		done := *exec
		require.NoError(t, done.Start())
		require.NoError(t, repo.UpdateStatus(ctx, &done, report.StatusPending))
		require.NoError(t, done.Complete(&report.ExportResult{Filename: "r.json"}, "s3://reports/r.json"))
		require.NoError(t, repo.UpdateStatus(ctx, &done, report.StatusRunning))

		_, err := tracker.Cancel(ctx, orgID, exec.ID)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("cross-tenant cancel is not found", func(t *testing.T) {
		repo := newMemExecRepo()
		tracker := NewTracker(repo, zaptest.NewLogger(t))
		exec := newPending(t, repo)

		_, err := tracker.Cancel(ctx, uuid.New(), exec.ID)
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestTracker_History(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	otherOrg := uuid.New()
	cfg := validConfig(t, orgID, "daily-hipaa", report.ReportTypeHIPAA)
	otherCfg := validConfig(t, orgID, "weekly-gdpr", report.ReportTypeGDPR)

	repo := newMemExecRepo()
	tracker := NewTracker(repo, zaptest.NewLogger(t))

	for _, c := range []*report.Config{cfg, cfg, otherCfg} {
		exec, err := report.NewExecution(&c.ID, orgID, report.TriggerManual, "")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, exec))
	}
	foreign, err := report.NewExecution(&cfg.ID, otherOrg, report.TriggerManual, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, foreign))

	byConfig, err := tracker.ListByConfig(ctx, orgID, cfg.ID, 100, 0)
	require.NoError(t, err)
	assert.Len(t, byConfig, 2)

	byOrg, err := tracker.ListByOrganization(ctx, orgID, 100, 0)
	require.NoError(t, err)
	assert.Len(t, byOrg, 3, "other tenants' executions are invisible")

	_, err = tracker.Get(ctx, orgID, foreign.ID)
	assert.True(t, errors.IsNotFound(err))
}
