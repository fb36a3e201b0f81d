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

// ConfigRepository implements report.ConfigRepository on PostgreSQL.
// Structured sub-documents (criteria, schedule, delivery, export) are
// stored as JSONB; identity and scheduling columns stay relational so
// the scheduler can select on them.
type ConfigRepository struct {
	db *pgxpool.Pool
}

// NewConfigRepository creates a new PostgreSQL config repository
func NewConfigRepository(db *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{db: db}
}

const configColumns = `
	id, organization_id, name, description, report_type,
	criteria, schedule, delivery, export, enabled,
	created_by, updated_by, created_at, updated_at`

func (r *ConfigRepository) Create(ctx context.Context, cfg *report.Config) error {
	criteria, schedule, delivery, export, err := marshalConfigDocs(cfg)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scheduled_report_configs (` + configColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.Exec(ctx, query,
		cfg.ID, cfg.OrganizationID, cfg.Name, cfg.Description, string(cfg.ReportType),
		criteria, schedule, delivery, export, cfg.Enabled,
		cfg.CreatedBy, cfg.UpdatedBy, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return errors.NewInternalError("failed to store report config").WithCause(err)
	}
	return nil
}

func (r *ConfigRepository) Update(ctx context.Context, cfg *report.Config) error {
	criteria, schedule, delivery, export, err := marshalConfigDocs(cfg)
	if err != nil {
		return err
	}

	query := `
		UPDATE scheduled_report_configs
		SET name = $3, description = $4, report_type = $5, criteria = $6,
		    schedule = $7, delivery = $8, export = $9, enabled = $10,
		    updated_by = $11, updated_at = $12
		WHERE id = $1 AND organization_id = $2`

	tag, err := r.db.Exec(ctx, query,
		cfg.ID, cfg.OrganizationID, cfg.Name, cfg.Description, string(cfg.ReportType),
		criteria, schedule, delivery, export, cfg.Enabled,
		cfg.UpdatedBy, cfg.UpdatedAt,
	)
	if err != nil {
		return errors.NewInternalError("failed to update report config").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("scheduled report config")
	}
	return nil
}

// Delete removes the config row only; report_executions reference
// configs without a foreign-key cascade, so history survives.
func (r *ConfigRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM scheduled_report_configs WHERE id = $1 AND organization_id = $2`,
		id, orgID)
	if err != nil {
		return errors.NewInternalError("failed to delete report config").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("scheduled report config")
	}
	return nil
}

func (r *ConfigRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*report.Config, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+configColumns+` FROM scheduled_report_configs
		 WHERE id = $1 AND organization_id = $2`,
		id, orgID)

	cfg, err := scanConfig(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NewNotFoundError("scheduled report config")
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to load report config").WithCause(err)
	}
	return cfg, nil
}

func (r *ConfigRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*report.Config, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+configColumns+` FROM scheduled_report_configs
		 WHERE organization_id = $1 ORDER BY created_at DESC`,
		orgID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list report configs").WithCause(err)
	}
	defer rows.Close()
	return scanConfigs(rows)
}

func (r *ConfigRepository) ListEnabled(ctx context.Context) ([]*report.Config, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+configColumns+` FROM scheduled_report_configs
		 WHERE enabled = true ORDER BY organization_id, created_at`)
	if err != nil {
		return nil, errors.NewInternalError("failed to list enabled report configs").WithCause(err)
	}
	defer rows.Close()
	return scanConfigs(rows)
}

// helpers

func marshalConfigDocs(cfg *report.Config) (criteria, schedule, delivery, export []byte, err error) {
	if criteria, err = json.Marshal(cfg.Criteria); err != nil {
		return nil, nil, nil, nil, errors.NewInternalError("failed to marshal criteria").WithCause(err)
	}
	if schedule, err = json.Marshal(cfg.Schedule); err != nil {
		return nil, nil, nil, nil, errors.NewInternalError("failed to marshal schedule").WithCause(err)
	}
	if delivery, err = json.Marshal(cfg.Delivery); err != nil {
		return nil, nil, nil, nil, errors.NewInternalError("failed to marshal delivery").WithCause(err)
	}
	if export, err = json.Marshal(cfg.Export); err != nil {
		return nil, nil, nil, nil, errors.NewInternalError("failed to marshal export").WithCause(err)
	}
	return criteria, schedule, delivery, export, nil
}

func scanConfig(row pgx.Row) (*report.Config, error) {
	var cfg report.Config
	var reportType string
	var criteria, schedule, delivery, export []byte

	err := row.Scan(
		&cfg.ID, &cfg.OrganizationID, &cfg.Name, &cfg.Description, &reportType,
		&criteria, &schedule, &delivery, &export, &cfg.Enabled,
		&cfg.CreatedBy, &cfg.UpdatedBy, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cfg.ReportType = report.ReportType(reportType)
	if err := json.Unmarshal(criteria, &cfg.Criteria); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schedule, &cfg.Schedule); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(delivery, &cfg.Delivery); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(export, &cfg.Export); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func scanConfigs(rows pgx.Rows) ([]*report.Config, error) {
	configs := make([]*report.Config, 0)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan report config").WithCause(err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate report configs").WithCause(err)
	}
	return configs, nil
}
