package report

import (
	"context"

	"github.com/google/uuid"
)

// ConfigRepository persists scheduled report configs. All reads are
// scoped by organization; an id belonging to another tenant behaves as
// not found.
type ConfigRepository interface {
	Create(ctx context.Context, cfg *Config) error
	Update(ctx context.Context, cfg *Config) error

	// Delete removes the config only. Execution history is linked by
	// reference and must survive.
	Delete(ctx context.Context, orgID, id uuid.UUID) error

	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Config, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*Config, error)

	// ListEnabled returns enabled configs across all organizations for
	// the scheduler tick.
	ListEnabled(ctx context.Context) ([]*Config, error)
}

// ExecutionRepository persists execution records. CreateScheduled relies
// on a storage-level unique constraint on (config id, period key) so the
// at-most-one-trigger-per-period guard holds across scheduler replicas.
type ExecutionRepository interface {
	// Create inserts an execution record unconditionally (manual and
	// ad-hoc triggers).
	Create(ctx context.Context, exec *Execution) error

	// CreateScheduled inserts a scheduled execution, returning a
	// ConcurrencyError when the (config id, period key) pair was
	// already triggered.
	CreateScheduled(ctx context.Context, exec *Execution) error

	// UpdateStatus persists a state transition. The write is
	// conditional on the stored status still being the transition's
	// origin state, so concurrent writers cannot clobber a terminal
	// state.
	UpdateStatus(ctx context.Context, exec *Execution, from ExecutionStatus) error

	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Execution, error)
	ListByConfig(ctx context.Context, orgID, configID uuid.UUID, limit, offset int) ([]*Execution, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Execution, error)
}
