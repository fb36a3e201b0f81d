package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/clearledger/compliance-backend/internal/domain/audit"
	"github.com/clearledger/compliance-backend/internal/domain/errors"
)

// AuditQueryRepository implements audit.QueryRepository against the
// audit_events table written by the ingestion pipeline. Read-only: the
// engine never inserts audit events.
type AuditQueryRepository struct {
	db *pgxpool.Pool
}

// NewAuditQueryRepository creates a new PostgreSQL audit query repository
func NewAuditQueryRepository(db *pgxpool.Pool) *AuditQueryRepository {
	return &AuditQueryRepository{db: db}
}

var sortableFields = map[string]string{
	"timestamp":    "timestamp",
	"action":       "action",
	"principal_id": "principal_id",
	"resource_id":  "resource_id",
}

func (r *AuditQueryRepository) Query(ctx context.Context, orgID uuid.UUID, filter audit.EventFilter, sort audit.Sort, limit, offset int) ([]*audit.Event, error) {
	where, args := buildEventPredicates(orgID, filter)

	orderBy := "timestamp DESC"
	if sort.Field != "" {
		column, ok := sortableFields[sort.Field]
		if !ok {
			return nil, errors.NewValidationError("INVALID_SORT_FIELD",
				"cannot sort by "+sort.Field)
		}
		direction := "DESC"
		if sort.Direction == audit.SortAsc {
			direction = "ASC"
		}
		orderBy = column + " " + direction
	}

	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT id, organization_id, principal_id, principal_type,
		       resource_id, resource_type, action, status, outcome,
		       data_classes, correlation_id, timestamp, timestamp_nano,
		       event_version, hash_algorithm, event_hash, previous_hash, metadata
		FROM audit_events
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), orderBy, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternalError("failed to query audit events").WithCause(err)
	}
	defer rows.Close()

	events := make([]*audit.Event, 0)
	for rows.Next() {
		var e audit.Event
		var dataClasses []string
		var correlationID, principalType, resourceType, eventHash, previousHash *string
		var metadata []byte

		err := rows.Scan(
			&e.ID, &e.OrganizationID, &e.PrincipalID, &principalType,
			&e.ResourceID, &resourceType, &e.Action, &e.Status, &e.Outcome,
			&dataClasses, &correlationID, &e.Timestamp, &e.TimestampNano,
			&e.EventVersion, &e.HashAlgorithm, &eventHash, &previousHash, &metadata,
		)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan audit event").WithCause(err)
		}

		e.DataClasses = dataClasses
		e.PrincipalType = derefString(principalType)
		e.ResourceType = derefString(resourceType)
		e.CorrelationID = derefString(correlationID)
		e.EventHash = derefString(eventHash)
		e.PreviousHash = derefString(previousHash)

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, errors.NewInternalError("failed to unmarshal event metadata").WithCause(err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate audit events").WithCause(err)
	}
	return events, nil
}

func (r *AuditQueryRepository) Count(ctx context.Context, orgID uuid.UUID, filter audit.EventFilter) (int64, error) {
	where, args := buildEventPredicates(orgID, filter)

	query := fmt.Sprintf(`SELECT COUNT(*) FROM audit_events WHERE %s`,
		strings.Join(where, " AND "))

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.NewInternalError("failed to count audit events").WithCause(err)
	}
	return count, nil
}

// buildEventPredicates assembles the conjunctive WHERE clause: AND
// across filter dimensions, IN (OR) within each list-valued filter.
func buildEventPredicates(orgID uuid.UUID, filter audit.EventFilter) ([]string, []interface{}) {
	where := []string{"organization_id = $1"}
	args := []interface{}{orgID}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.StartTime.IsZero() {
		where = append(where, "timestamp >= "+arg(filter.StartTime))
	}
	if !filter.EndTime.IsZero() {
		where = append(where, "timestamp <= "+arg(filter.EndTime))
	}
	if len(filter.PrincipalIDs) > 0 {
		where = append(where, "principal_id = ANY("+arg(pq.Array(filter.PrincipalIDs))+")")
	}
	if len(filter.Actions) > 0 {
		where = append(where, "action = ANY("+arg(pq.Array(filter.Actions))+")")
	}
	if len(filter.ResourceTypes) > 0 {
		where = append(where, "resource_type = ANY("+arg(pq.Array(filter.ResourceTypes))+")")
	}
	if len(filter.CorrelationIDs) > 0 {
		where = append(where, "correlation_id = ANY("+arg(pq.Array(filter.CorrelationIDs))+")")
	}
	if len(filter.DataClasses) > 0 {
		where = append(where, "data_classes && "+arg(pq.Array(filter.DataClasses)))
	}
	if filter.VerifiedOnly {
		where = append(where, "event_hash IS NOT NULL AND event_hash <> ''")
	}

	return where, args
}
