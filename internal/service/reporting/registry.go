package reporting

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// CreateConfigRequest is the boundary type for registering a recurring
// report job. Domain validation (schedule, delivery union, criteria)
// happens in report.NewConfig; struct tags cover shape-level checks.
type CreateConfigRequest struct {
	Name        string                `json:"name" validate:"required,max=255"`
	Description string                `json:"description" validate:"max=2000"`
	ReportType  report.ReportType     `json:"report_type" validate:"required"`
	Criteria    report.Criteria       `json:"criteria"`
	Schedule    report.Schedule       `json:"schedule"`
	Delivery    report.DeliveryConfig `json:"delivery"`
	Export      report.ExportOptions  `json:"export"`
	RequestedBy string                `json:"requested_by" validate:"required,max=255"`
}

// UpdateConfigRequest carries a partial update: only non-nil fields
// replace the stored values. Supplied criteria are re-pinned to the
// caller's organization.
type UpdateConfigRequest struct {
	Name        *string                `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string                `json:"description,omitempty" validate:"omitempty,max=2000"`
	Criteria    *report.Criteria       `json:"criteria,omitempty"`
	Schedule    *report.Schedule       `json:"schedule,omitempty"`
	Delivery    *report.DeliveryConfig `json:"delivery,omitempty"`
	Export      *report.ExportOptions  `json:"export,omitempty"`
	Enabled     *bool                  `json:"enabled,omitempty"`
	RequestedBy string                 `json:"requested_by" validate:"required,max=255"`
}

// Registry manages the lifecycle of scheduled report configs. Every
// operation is scoped to the caller's organization; cross-tenant ids
// surface as not found.
type Registry struct {
	configs  report.ConfigRepository
	validate *validator.Validate
	logger   *zap.Logger
}

// NewRegistry creates a new report config registry
func NewRegistry(configs report.ConfigRepository, logger *zap.Logger) *Registry {
	return &Registry{
		configs:  configs,
		validate: validator.New(),
		logger:   logger,
	}
}

// Create registers a new recurring report job for the organization.
func (r *Registry) Create(ctx context.Context, orgID uuid.UUID, req CreateConfigRequest) (*report.Config, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("INVALID_REQUEST", "invalid report config request").WithCause(err)
	}

	cfg, err := report.NewConfig(orgID, req.Name, req.ReportType, req.Criteria,
		req.Schedule, req.Delivery, req.Export, req.RequestedBy)
	if err != nil {
		return nil, err
	}
	cfg.Description = req.Description

	if err := r.configs.Create(ctx, cfg); err != nil {
		return nil, err
	}

	r.logger.Info("report config created",
		zap.String("config_id", cfg.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.String("report_type", string(cfg.ReportType)),
		zap.String("frequency", string(cfg.Schedule.Frequency)))
	return cfg, nil
}

// Update applies the supplied fields to an existing config; omitted
// fields keep their stored values.
func (r *Registry) Update(ctx context.Context, orgID, id uuid.UUID, req UpdateConfigRequest) (*report.Config, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("INVALID_REQUEST", "invalid report config request").WithCause(err)
	}
	if req.Schedule != nil {
		if err := req.Schedule.Validate(); err != nil {
			return nil, err
		}
	}
	if req.Delivery != nil {
		if err := req.Delivery.Validate(); err != nil {
			return nil, err
		}
	}
	if req.Export != nil {
		if err := req.Export.Validate(); err != nil {
			return nil, err
		}
	}

	cfg, err := r.configs.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		cfg.Name = *req.Name
	}
	if req.Description != nil {
		cfg.Description = *req.Description
	}
	if req.Criteria != nil {
		cfg.Criteria = *req.Criteria
		cfg.Criteria.ForceOrganization(orgID)
	}
	if req.Schedule != nil {
		cfg.Schedule = *req.Schedule
	}
	if req.Delivery != nil {
		cfg.Delivery = *req.Delivery
	}
	if req.Export != nil {
		cfg.Export = *req.Export
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	cfg.UpdatedBy = req.RequestedBy
	cfg.UpdatedAt = time.Now().UTC()

	if err := r.configs.Update(ctx, cfg); err != nil {
		return nil, err
	}

	r.logger.Info("report config updated",
		zap.String("config_id", cfg.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.Bool("enabled", cfg.Enabled))
	return cfg, nil
}

// SetEnabled toggles a config without touching its definition.
func (r *Registry) SetEnabled(ctx context.Context, orgID, id uuid.UUID, enabled bool, requestedBy string) (*report.Config, error) {
	cfg, err := r.configs.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled
	cfg.UpdatedBy = requestedBy
	cfg.UpdatedAt = time.Now().UTC()

	if err := r.configs.Update(ctx, cfg); err != nil {
		return nil, err
	}

	r.logger.Info("report config toggled",
		zap.String("config_id", id.String()),
		zap.Bool("enabled", enabled))
	return cfg, nil
}

// Delete removes a config. Its execution history stays behind as an
// auditable record.
func (r *Registry) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	if err := r.configs.Delete(ctx, orgID, id); err != nil {
		return err
	}
	r.logger.Info("report config deleted",
		zap.String("config_id", id.String()),
		zap.String("org_id", orgID.String()))
	return nil
}

// Get returns a single config scoped to the organization.
func (r *Registry) Get(ctx context.Context, orgID, id uuid.UUID) (*report.Config, error) {
	return r.configs.GetByID(ctx, orgID, id)
}

// List returns all of the organization's configs.
func (r *Registry) List(ctx context.Context, orgID uuid.UUID) ([]*report.Config, error) {
	return r.configs.ListByOrganization(ctx, orgID)
}
