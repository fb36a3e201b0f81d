package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/compliance-backend/internal/domain/audit"
	"github.com/clearledger/compliance-backend/internal/domain/errors"
)

// ReportType identifies the compliance framework a report targets
type ReportType string

const (
	ReportTypeHIPAA     ReportType = "hipaa_audit_trail"
	ReportTypeGDPR      ReportType = "gdpr_processing_activities"
	ReportTypeIntegrity ReportType = "integrity_verification"
	ReportTypeGeneral   ReportType = "general_compliance"
)

// HasComplianceScore reports whether a compliance score is meaningful
// for this report type. Generic reports omit the score.
func (rt ReportType) HasComplianceScore() bool {
	return rt == ReportTypeHIPAA || rt == ReportTypeGDPR
}

func validReportType(rt ReportType) bool {
	switch rt {
	case ReportTypeHIPAA, ReportTypeGDPR, ReportTypeIntegrity, ReportTypeGeneral:
		return true
	}
	return false
}

// RelativePeriod expresses a date range relative to execution time
type RelativePeriod string

const (
	PeriodLastDay     RelativePeriod = "last_day"
	PeriodLastWeek    RelativePeriod = "last_week"
	PeriodLastMonth   RelativePeriod = "last_month"
	PeriodLastQuarter RelativePeriod = "last_quarter"
)

// DateRange is either absolute (Start/End set) or relative (Period set).
type DateRange struct {
	Start  time.Time      `json:"start,omitempty"`
	End    time.Time      `json:"end,omitempty"`
	Period RelativePeriod `json:"period,omitempty"`
}

// Resolve converts the range to concrete bounds as of now.
func (dr DateRange) Resolve(now time.Time) (time.Time, time.Time, error) {
	if dr.Period != "" {
		switch dr.Period {
		case PeriodLastDay:
			return now.AddDate(0, 0, -1), now, nil
		case PeriodLastWeek:
			return now.AddDate(0, 0, -7), now, nil
		case PeriodLastMonth:
			return now.AddDate(0, -1, 0), now, nil
		case PeriodLastQuarter:
			return now.AddDate(0, -3, 0), now, nil
		default:
			return time.Time{}, time.Time{}, errors.NewValidationError("INVALID_PERIOD",
				"unknown relative period "+string(dr.Period))
		}
	}
	if dr.Start.IsZero() || dr.End.IsZero() {
		return time.Time{}, time.Time{}, errors.NewValidationError("MISSING_DATE_RANGE",
			"date range requires start and end, or a relative period")
	}
	if dr.End.Before(dr.Start) {
		return time.Time{}, time.Time{}, errors.NewValidationError("INVALID_DATE_RANGE",
			"date range end precedes start")
	}
	return dr.Start, dr.End, nil
}

// Criteria selects the audit events a report covers. OrganizationIDs is
// always forced to the owning organization; caller-supplied values are
// never trusted.
type Criteria struct {
	OrganizationIDs []uuid.UUID `json:"organization_ids"`
	DateRange       DateRange   `json:"date_range"`
	PrincipalIDs    []string    `json:"principal_ids,omitempty"`
	Actions         []string    `json:"actions,omitempty"`
	DataClasses     []string    `json:"data_classes,omitempty"`
	ResourceTypes   []string    `json:"resource_types,omitempty"`
	CorrelationIDs  []string    `json:"correlation_ids,omitempty"`
	VerifiedOnly    bool        `json:"verified_only,omitempty"`
	Limit           int         `json:"limit,omitempty"`
	Offset          int         `json:"offset,omitempty"`
	Sort            audit.Sort  `json:"sort,omitempty"`
}

// ForceOrganization overwrites any caller-supplied organization list
// with the single owning tenant.
func (c *Criteria) ForceOrganization(orgID uuid.UUID) {
	c.OrganizationIDs = []uuid.UUID{orgID}
}

// ToEventFilter resolves the criteria into a concrete event filter.
func (c Criteria) ToEventFilter(now time.Time) (audit.EventFilter, error) {
	start, end, err := c.DateRange.Resolve(now)
	if err != nil {
		return audit.EventFilter{}, err
	}
	return audit.EventFilter{
		StartTime:      start,
		EndTime:        end,
		PrincipalIDs:   c.PrincipalIDs,
		Actions:        c.Actions,
		DataClasses:    c.DataClasses,
		ResourceTypes:  c.ResourceTypes,
		CorrelationIDs: c.CorrelationIDs,
		VerifiedOnly:   c.VerifiedOnly,
	}, nil
}

// DeliveryMethod identifies the channel a report is delivered through
type DeliveryMethod string

const (
	DeliveryEmail   DeliveryMethod = "email"
	DeliveryWebhook DeliveryMethod = "webhook"
	DeliveryStorage DeliveryMethod = "storage"
)

// DeliveryConfig is a tagged union: Method selects which variant config
// applies. Exactly one variant is populated.
type DeliveryConfig struct {
	Method  DeliveryMethod         `json:"method"`
	Email   *EmailDeliveryConfig   `json:"email,omitempty"`
	Webhook *WebhookDeliveryConfig `json:"webhook,omitempty"`
	Storage *StorageDeliveryConfig `json:"storage,omitempty"`
}

type EmailDeliveryConfig struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject,omitempty"`
}

type WebhookDeliveryConfig struct {
	URL            string            `json:"url"`
	MethodOverride string            `json:"method_override,omitempty"` // defaults to POST
	Headers        map[string]string `json:"headers,omitempty"`
	Secret         string            `json:"secret,omitempty"` // HMAC signing key
}

type StorageDeliveryConfig struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
}

// Validate checks the tagged union is internally consistent.
func (dc DeliveryConfig) Validate() error {
	switch dc.Method {
	case DeliveryEmail:
		if dc.Email == nil || len(dc.Email.Recipients) == 0 {
			return errors.NewValidationError("MISSING_RECIPIENTS",
				"email delivery requires at least one recipient")
		}
	case DeliveryWebhook:
		if dc.Webhook == nil || dc.Webhook.URL == "" {
			return errors.NewValidationError("MISSING_WEBHOOK_URL",
				"webhook delivery requires a URL")
		}
	case DeliveryStorage:
		if dc.Storage == nil || dc.Storage.Bucket == "" {
			return errors.NewValidationError("MISSING_STORAGE_BUCKET",
				"storage delivery requires a bucket")
		}
	default:
		return errors.NewValidationError("INVALID_DELIVERY_METHOD",
			"delivery method must be email, webhook, or storage")
	}
	return nil
}

// ExportFormat for encoded output
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatXML  ExportFormat = "xml"
	FormatPDF  ExportFormat = "pdf" // accepted in configs, not yet encodable
)

// Compression applied to encoded output
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZip  Compression = "zip"
)

// EncryptionOptions for encoded output. Encryption always runs after
// compression so compressibility is preserved.
type EncryptionOptions struct {
	Enabled   bool   `json:"enabled"`
	Algorithm string `json:"algorithm,omitempty"` // aes-256-gcm
	Key       []byte `json:"-"`
}

// ExportOptions configure the export encoder for a job
type ExportOptions struct {
	Format                 ExportFormat      `json:"format"`
	IncludeMetadata        bool              `json:"include_metadata"`
	IncludeIntegrityReport bool              `json:"include_integrity_report"`
	Compression            Compression       `json:"compression,omitempty"`
	Encryption             EncryptionOptions `json:"encryption,omitempty"`
}

func validExportFormat(f ExportFormat) bool {
	switch f {
	case FormatJSON, FormatCSV, FormatXML, FormatPDF:
		return true
	}
	return false
}

// Validate checks the export format is one of the supported set.
func (o ExportOptions) Validate() error {
	if !validExportFormat(o.Format) {
		return errors.NewValidationError("INVALID_EXPORT_FORMAT",
			"export format must be json, csv, xml, or pdf")
	}
	return nil
}

// Config is a recurring report job definition (ScheduledReportConfig)
type Config struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	ReportType     ReportType     `json:"report_type"`
	Criteria       Criteria       `json:"criteria"`
	Schedule       Schedule       `json:"schedule"`
	Delivery       DeliveryConfig `json:"delivery"`
	Export         ExportOptions  `json:"export"`
	Enabled        bool           `json:"enabled"`
	CreatedBy      string         `json:"created_by"`
	UpdatedBy      string         `json:"updated_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewConfig creates a validated job definition with tenant isolation
// forced onto the criteria.
func NewConfig(orgID uuid.UUID, name string, reportType ReportType, criteria Criteria,
	schedule Schedule, delivery DeliveryConfig, export ExportOptions, createdBy string) (*Config, error) {

	if orgID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ORGANIZATION_ID", "organization ID is required")
	}
	if name == "" {
		return nil, errors.NewValidationError("MISSING_NAME", "report name is required")
	}
	if !validReportType(reportType) {
		return nil, errors.NewValidationError("INVALID_REPORT_TYPE",
			"report type must be a supported compliance report type")
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if err := delivery.Validate(); err != nil {
		return nil, err
	}
	if err := export.Validate(); err != nil {
		return nil, err
	}

	criteria.ForceOrganization(orgID)

	now := time.Now().UTC()
	return &Config{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		ReportType:     reportType,
		Criteria:       criteria,
		Schedule:       schedule,
		Delivery:       delivery,
		Export:         export,
		Enabled:        true,
		CreatedBy:      createdBy,
		UpdatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
