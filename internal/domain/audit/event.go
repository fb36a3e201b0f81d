package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
)

// HashAlgorithmSHA256 is the only algorithm the current event version uses.
// Changing the canonical field set or ordering requires bumping EventVersion
// alongside a new algorithm identifier; both travel with the event.
const (
	HashAlgorithmSHA256 = "sha256"
	CurrentEventVersion = 1
)

// Event is an immutable audit record produced by the ingestion pipeline.
// The engine never creates these; it reads them through the query
// repository and verifies their integrity hashes.
type Event struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`

	// Principal (who acted)
	PrincipalID   string `json:"principal_id"`
	PrincipalType string `json:"principal_type,omitempty"` // user, system, api

	// Resource (what was acted upon)
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type,omitempty"`

	// Action details
	Action  string `json:"action"`
	Status  string `json:"status"`  // attempted, completed, denied
	Outcome string `json:"outcome"` // success, failure, partial

	// Classification and correlation
	DataClasses   []string `json:"data_classes,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`

	Timestamp     time.Time `json:"timestamp"`
	TimestampNano int64     `json:"timestamp_nano"`

	// Cryptographic integrity
	EventVersion  int    `json:"event_version"`
	HashAlgorithm string `json:"hash_algorithm"`
	EventHash     string `json:"event_hash,omitempty"`
	PreviousHash  string `json:"previous_hash,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// canonicalFields is the fixed, order-stable hashing input. JSON object
// keys marshal in lexical order, so the serialization is deterministic
// for a given field set. Adding, removing, or renaming a field here is a
// breaking change that requires an EventVersion bump.
type canonicalFields struct {
	Action         string   `json:"action"`
	DataClasses    []string `json:"data_classes"`
	EventVersion   int      `json:"event_version"`
	OrganizationID string   `json:"organization_id"`
	Outcome        string   `json:"outcome"`
	PreviousHash   string   `json:"previous_hash"`
	PrincipalID    string   `json:"principal_id"`
	ResourceID     string   `json:"resource_id"`
	Status         string   `json:"status"`
	TimestampNano  int64    `json:"timestamp_nano"`
}

// Validate checks that every field participating in the canonical hash is
// present. The verifier never substitutes defaults for missing fields.
func (e *Event) Validate() error {
	if e.ID == uuid.Nil {
		return errors.NewValidationError("MISSING_EVENT_ID", "event ID is required")
	}
	if e.OrganizationID == uuid.Nil {
		return errors.NewValidationError("MISSING_ORGANIZATION_ID", "organization ID is required")
	}
	if e.PrincipalID == "" {
		return errors.NewValidationError("MISSING_PRINCIPAL_ID", "principal ID is required")
	}
	if e.ResourceID == "" {
		return errors.NewValidationError("MISSING_RESOURCE_ID", "resource ID is required")
	}
	if e.Action == "" {
		return errors.NewValidationError("MISSING_ACTION", "action is required")
	}
	if e.Status == "" {
		return errors.NewValidationError("MISSING_STATUS", "status is required")
	}
	if e.Outcome == "" {
		return errors.NewValidationError("MISSING_OUTCOME", "outcome is required")
	}
	if e.Timestamp.IsZero() || e.TimestampNano == 0 {
		return errors.NewValidationError("MISSING_TIMESTAMP", "timestamp is required")
	}
	if e.EventVersion <= 0 {
		return errors.NewValidationError("MISSING_EVENT_VERSION", "event version is required")
	}
	return nil
}

// ComputeHash returns the SHA-256 hash of the event's canonical
// serialization. Pure function over the event's immutable fields.
func ComputeHash(e *Event) (string, error) {
	if e == nil {
		return "", errors.NewValidationError("NIL_EVENT", "event cannot be nil")
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.HashAlgorithm != "" && e.HashAlgorithm != HashAlgorithmSHA256 {
		return "", errors.NewValidationError("UNSUPPORTED_HASH_ALGORITHM",
			"unknown hash algorithm "+e.HashAlgorithm)
	}

	data := canonicalFields{
		Action:         e.Action,
		DataClasses:    e.DataClasses,
		EventVersion:   e.EventVersion,
		OrganizationID: e.OrganizationID.String(),
		Outcome:        e.Outcome,
		PreviousHash:   e.PreviousHash,
		PrincipalID:    e.PrincipalID,
		ResourceID:     e.ResourceID,
		Status:         e.Status,
		TimestampNano:  e.TimestampNano,
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", errors.NewInternalError("failed to marshal canonical fields").WithCause(err)
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks the event's integrity against an expected hash. An empty
// expected hash means "not verified" and always yields false, never an
// error. Malformed events also yield false.
func Verify(e *Event, expectedHash string) bool {
	if e == nil || expectedHash == "" {
		return false
	}
	computed, err := ComputeHash(e)
	if err != nil {
		return false
	}
	return computed == expectedHash
}

// VerifyEvent is the logging-friendly variant of Verify: it returns the
// full verification result, including the computed hash, for the caller
// to append to the verification log. Malformed events fail with a
// ValidationError rather than a silent false.
func VerifyEvent(e *Event, expectedHash string) (*VerificationResult, error) {
	if e == nil {
		return nil, errors.NewValidationError("NIL_EVENT", "event cannot be nil")
	}

	result := &VerificationResult{
		EventID:      e.ID,
		ExpectedHash: expectedHash,
		Timestamp:    time.Now().UTC(),
	}

	if expectedHash == "" {
		// Absence of a hash is "not verified", distinct from "failed".
		result.IsValid = false
		return result, nil
	}

	computed, err := ComputeHash(e)
	if err != nil {
		return nil, err
	}

	result.ComputedHash = computed
	result.IsValid = computed == expectedHash
	return result, nil
}
