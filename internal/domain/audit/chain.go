package audit

import (
	"fmt"
	"sort"
	"time"
)

// ChainVerifier verifies previous-hash linkage across a sequence of
// related events (for example all events sharing a correlation ID).
type ChainVerifier interface {
	// VerifySequential verifies a sequence of events maintains hash chain integrity
	VerifySequential(events []*Event) (*ChainVerificationResult, error)

	// DetectBreaks finds all hash chain breaks in a sequence
	DetectBreaks(events []*Event) ([]*ChainBreak, error)
}

// HashChainVerifier implements ChainVerifier
type HashChainVerifier struct {
	validateTimestamps bool
}

// NewHashChainVerifier creates a new hash chain verifier with default settings
func NewHashChainVerifier() *HashChainVerifier {
	return &HashChainVerifier{validateTimestamps: true}
}

// ChainVerificationResult contains the results of hash chain verification
type ChainVerificationResult struct {
	IsValid          bool                  `json:"is_valid"`
	EventsVerified   int                   `json:"events_verified"`
	ChainBreaks      []*ChainBreak         `json:"chain_breaks,omitempty"`
	Results          []*VerificationResult `json:"results,omitempty"`
	VerificationTime time.Duration         `json:"verification_time"`
}

// ChainBreak represents a detected break in the hash chain
type ChainBreak struct {
	EventID         string    `json:"event_id"`
	ExpectedHash    string    `json:"expected_hash"`
	ActualHash      string    `json:"actual_hash"`
	BreakType       BreakType `json:"break_type"`
	Description     string    `json:"description"`
	PreviousEventID string    `json:"previous_event_id,omitempty"`
}

// BreakType categorizes the type of chain break
type BreakType string

const (
	BreakTypeHashMismatch     BreakType = "hash_mismatch"
	BreakTypeLinkMismatch     BreakType = "link_mismatch"
	BreakTypeTimestampReverse BreakType = "timestamp_reverse"
	BreakTypeMalformedEvent   BreakType = "malformed_event"
)

func (bt BreakType) String() string {
	return string(bt)
}

// VerifySequential checks every event's own hash and its link to the
// preceding event. Events are ordered by timestamp before linking.
func (v *HashChainVerifier) VerifySequential(events []*Event) (*ChainVerificationResult, error) {
	startTime := time.Now()

	result := &ChainVerificationResult{
		IsValid:     true,
		ChainBreaks: make([]*ChainBreak, 0),
		Results:     make([]*VerificationResult, 0, len(events)),
	}

	if len(events) == 0 {
		result.VerificationTime = time.Since(startTime)
		return result, nil
	}

	sorted := make([]*Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TimestampNano < sorted[j].TimestampNano
	})

	var previousHash string
	var previousTimestamp time.Time
	var previousID string

	for i, event := range sorted {
		result.EventsVerified++

		if err := event.Validate(); err != nil {
			result.IsValid = false
			result.ChainBreaks = append(result.ChainBreaks, &ChainBreak{
				EventID:     event.ID.String(),
				BreakType:   BreakTypeMalformedEvent,
				Description: fmt.Sprintf("event failed validation: %v", err),
			})
			continue
		}

		if v.validateTimestamps && i > 0 && event.Timestamp.Before(previousTimestamp) {
			result.IsValid = false
			result.ChainBreaks = append(result.ChainBreaks, &ChainBreak{
				EventID:         event.ID.String(),
				BreakType:       BreakTypeTimestampReverse,
				Description:     "event timestamp is before previous event",
				PreviousEventID: previousID,
			})
		}

		// Link check: each event (after the first) must carry the hash
		// of its predecessor.
		if i > 0 && event.PreviousHash != previousHash {
			result.IsValid = false
			result.ChainBreaks = append(result.ChainBreaks, &ChainBreak{
				EventID:         event.ID.String(),
				ExpectedHash:    previousHash,
				ActualHash:      event.PreviousHash,
				BreakType:       BreakTypeLinkMismatch,
				Description:     "previous-hash link does not match preceding event",
				PreviousEventID: previousID,
			})
		}

		// Own-hash check against the stored hash.
		vr, err := VerifyEvent(event, event.EventHash)
		if err != nil {
			result.IsValid = false
			result.ChainBreaks = append(result.ChainBreaks, &ChainBreak{
				EventID:     event.ID.String(),
				BreakType:   BreakTypeMalformedEvent,
				Description: fmt.Sprintf("hash verification error: %v", err),
			})
			continue
		}
		result.Results = append(result.Results, vr)

		if !vr.IsValid {
			result.IsValid = false
			result.ChainBreaks = append(result.ChainBreaks, &ChainBreak{
				EventID:      event.ID.String(),
				ExpectedHash: event.EventHash,
				ActualHash:   vr.ComputedHash,
				BreakType:    BreakTypeHashMismatch,
				Description:  "stored event hash does not match canonical fields",
			})
		}

		previousHash = event.EventHash
		previousTimestamp = event.Timestamp
		previousID = event.ID.String()
	}

	result.VerificationTime = time.Since(startTime)
	return result, nil
}

// DetectBreaks finds all hash chain breaks in a sequence
func (v *HashChainVerifier) DetectBreaks(events []*Event) ([]*ChainBreak, error) {
	result, err := v.VerifySequential(events)
	if err != nil {
		return nil, err
	}
	return result.ChainBreaks, nil
}
