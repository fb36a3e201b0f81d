package report

import (
	"time"

	"github.com/clearledger/compliance-backend/internal/domain/audit"
)

// ReportStatus of a generated (transient) compliance report
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// Summary aggregates per-event verification outcomes for a report.
// ComplianceScore is verified/total; nil when the report type carries no
// score or when no events matched.
type Summary struct {
	TotalEvents         int      `json:"total_events"`
	VerifiedEvents      int      `json:"verified_events"`
	FailedVerifications int      `json:"failed_verifications"`
	ComplianceScore     *float64 `json:"compliance_score,omitempty"`
}

// ComplianceReport is produced per execution. It is not persisted as
// configuration; the execution record embeds its result.
type ComplianceReport struct {
	Type        ReportType        `json:"type"`
	Criteria    audit.EventFilter `json:"criteria"` // resolved, concrete dates
	GeneratedAt time.Time         `json:"generated_at"`
	Status      ReportStatus      `json:"status"`
	Summary     Summary           `json:"summary"`
	Events      []*audit.Event    `json:"events"`
	Integrity   *IntegritySection `json:"integrity,omitempty"`
	DownloadURL string            `json:"download_url,omitempty"`
}

// IntegritySection carries per-event verification detail when the config
// requests an integrity report.
type IntegritySection struct {
	Results     []*audit.VerificationResult    `json:"results"`
	ChainResult *audit.ChainVerificationResult `json:"chain_result,omitempty"`
}

// ComputeScore fills Summary.ComplianceScore for report types where the
// score is meaningful. Zero matched events leaves the score unset.
func (r *ComplianceReport) ComputeScore() {
	if !r.Type.HasComplianceScore() {
		r.Summary.ComplianceScore = nil
		return
	}
	if r.Summary.TotalEvents == 0 {
		r.Summary.ComplianceScore = nil
		return
	}
	score := float64(r.Summary.VerifiedEvents) / float64(r.Summary.TotalEvents)
	r.Summary.ComplianceScore = &score
}
