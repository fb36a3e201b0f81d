package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VerificationResult is the outcome of verifying a single audit event.
// Chain holds recursive results when related events were verified as a
// linked sequence.
type VerificationResult struct {
	IsValid      bool                  `json:"is_valid"`
	ExpectedHash string                `json:"expected_hash,omitempty"`
	ComputedHash string                `json:"computed_hash,omitempty"`
	Timestamp    time.Time             `json:"timestamp"`
	EventID      uuid.UUID             `json:"event_id"`
	Chain        []*VerificationResult `json:"verification_chain,omitempty"`
}

// VerificationRecord is one row of the append-only verification log.
// Records are only ever inserted; nothing updates or deletes them.
type VerificationRecord struct {
	ID             uuid.UUID `json:"id"`
	EventID        uuid.UUID `json:"event_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	VerifierID     string    `json:"verifier_id"`
	IsValid        bool      `json:"is_valid"`
	ExpectedHash   string    `json:"expected_hash,omitempty"`
	ComputedHash   string    `json:"computed_hash,omitempty"`
	VerifiedAt     time.Time `json:"verified_at"`
}

// NewVerificationRecord builds a log record from a verification result.
func NewVerificationRecord(orgID uuid.UUID, verifierID string, result *VerificationResult) *VerificationRecord {
	return &VerificationRecord{
		ID:             uuid.New(),
		EventID:        result.EventID,
		OrganizationID: orgID,
		VerifierID:     verifierID,
		IsValid:        result.IsValid,
		ExpectedHash:   result.ExpectedHash,
		ComputedHash:   result.ComputedHash,
		VerifiedAt:     result.Timestamp,
	}
}

// VerificationLogRepository persists the append-only verification log.
type VerificationLogRepository interface {
	// Append inserts verification records. Implementations must never
	// expose update or delete paths for this log.
	Append(ctx context.Context, records []*VerificationRecord) error

	// ListByEvent returns all verification attempts recorded for an event.
	ListByEvent(ctx context.Context, orgID, eventID uuid.UUID) ([]*VerificationRecord, error)
}
