package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SortDirection for query ordering
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort describes query result ordering. The zero value means
// timestamp-descending, the engine default.
type Sort struct {
	Field     string        `json:"field,omitempty"`
	Direction SortDirection `json:"direction,omitempty"`
}

// EventFilter narrows an audit event query. Filter dimensions combine
// with AND semantics; values inside one list combine with OR.
type EventFilter struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	PrincipalIDs   []string  `json:"principal_ids,omitempty"`
	Actions        []string  `json:"actions,omitempty"`
	DataClasses    []string  `json:"data_classes,omitempty"`
	ResourceTypes  []string  `json:"resource_types,omitempty"`
	CorrelationIDs []string  `json:"correlation_ids,omitempty"`
	VerifiedOnly   bool      `json:"verified_only,omitempty"`
}

// QueryRepository is the engine's contract with the external audit event
// store. The ingestion pipeline owns writes; the engine only reads.
type QueryRepository interface {
	// Query returns events matching the filter, scoped to one
	// organization, ordered and paginated.
	Query(ctx context.Context, orgID uuid.UUID, filter EventFilter, sort Sort, limit, offset int) ([]*Event, error)

	// Count returns the total number of events matching the filter.
	Count(ctx context.Context, orgID uuid.UUID, filter EventFilter) (int64, error)
}
