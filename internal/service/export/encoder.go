package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/audit"
	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// Artifact is the encoded, optionally compressed and encrypted output of
// an export job, ready for delivery.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	RecordCount int
	Compressed  bool
	Encrypted   bool
}

// Encoder turns a generated compliance report into a deliverable
// artifact. The pipeline is encode -> compress -> encrypt; encryption
// runs last so compression still sees compressible plaintext.
type Encoder struct {
	logger *zap.Logger
}

// NewEncoder creates a new export encoder
func NewEncoder(logger *zap.Logger) *Encoder {
	return &Encoder{logger: logger}
}

// Encode produces the artifact for rpt under the given options. The
// format is validated before any encoding work starts, so an
// unsupported format fails fast without touching event data.
func (e *Encoder) Encode(ctx context.Context, name string, rpt *report.ComplianceReport, opts report.ExportOptions) (*Artifact, error) {
	if err := validateFormat(opts.Format); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewEncodingError("ENCODING_CANCELLED", "export cancelled").WithCause(err)
	}

	// The integrity section is opt-in per config.
	working := *rpt
	if !opts.IncludeIntegrityReport {
		working.Integrity = nil
	}

	var (
		data []byte
		ext  string
		err  error
	)
	switch opts.Format {
	case report.FormatJSON:
		data, err = e.encodeJSON(&working, opts)
		ext = "json"
	case report.FormatCSV:
		data, err = e.encodeCSV(&working, opts)
		ext = "csv"
	case report.FormatXML:
		data, err = e.encodeXML(&working, opts)
		ext = "xml"
	}
	if err != nil {
		return nil, err
	}

	filename := artifactFilename(name, working.GeneratedAt, ext)
	contentType := contentTypeFor(opts.Format)

	compressed := false
	if opts.Compression != "" && opts.Compression != report.CompressionNone {
		data, filename, contentType, err = compress(data, opts.Compression, filename)
		if err != nil {
			return nil, err
		}
		compressed = true
	}

	encrypted := false
	if opts.Encryption.Enabled {
		data, err = encrypt(data, opts.Encryption)
		if err != nil {
			return nil, err
		}
		filename += ".enc"
		contentType = "application/octet-stream"
		encrypted = true
	}

	e.logger.Debug("report encoded",
		zap.String("filename", filename),
		zap.String("format", string(opts.Format)),
		zap.Int("record_count", len(working.Events)),
		zap.Int("data_size", len(data)),
		zap.Bool("compressed", compressed),
		zap.Bool("encrypted", encrypted))

	return &Artifact{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
		RecordCount: len(working.Events),
		Compressed:  compressed,
		Encrypted:   encrypted,
	}, nil
}

func validateFormat(f report.ExportFormat) error {
	switch f {
	case report.FormatJSON, report.FormatCSV, report.FormatXML:
		return nil
	case report.FormatPDF:
		return errors.NewEncodingError("UNSUPPORTED_FORMAT",
			"pdf export is accepted in configs but not yet encodable")
	default:
		return errors.NewEncodingError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("format %s is not supported", f))
	}
}

func contentTypeFor(f report.ExportFormat) string {
	switch f {
	case report.FormatJSON:
		return "application/json"
	case report.FormatCSV:
		return "text/csv"
	case report.FormatXML:
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}

// artifactFilename builds "<slug>-<timestamp>.<ext>". The report name is
// slugified so delivery channels never see path separators or spaces.
func artifactFilename(name string, generatedAt time.Time, ext string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '_', r == '/', r == '.':
			return '-'
		default:
			return -1
		}
	}, name)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "compliance-report"
	}
	return fmt.Sprintf("%s-%s.%s", slug, generatedAt.UTC().Format("20060102T150405Z"), ext)
}

// exporterIdentity travels in the optional generation-metadata block.
const exporterIdentity = "clc-report-engine"

// exportMetadata is the generation-metadata block gated on
// IncludeMetadata. It is the only non-deterministic part of the payload:
// with the flag off, encoding the same logical report twice yields
// byte-identical output.
type exportMetadata struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Criteria    audit.EventFilter `json:"criteria"`
	ExportedBy  string            `json:"exported_by"`
}

func (e *Encoder) encodeJSON(rpt *report.ComplianceReport, opts report.ExportOptions) ([]byte, error) {
	doc := map[string]interface{}{
		"type":    rpt.Type,
		"summary": rpt.Summary,
		"events":  rpt.Events,
	}
	if rpt.Integrity != nil {
		doc["integrity"] = rpt.Integrity
	}
	if opts.IncludeMetadata {
		doc["metadata"] = exportMetadata{
			GeneratedAt: rpt.GeneratedAt,
			Criteria:    rpt.Criteria,
			ExportedBy:  exporterIdentity,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, errors.NewEncodingError("JSON_ENCODING_FAILED", "failed to encode report as JSON").WithCause(err)
	}
	return buf.Bytes(), nil
}

var csvHeaders = []string{
	"id", "timestamp", "principal_id", "principal_type",
	"resource_id", "resource_type", "action", "status", "outcome",
	"data_classes", "correlation_id", "event_hash", "metadata",
}

func (e *Encoder) encodeCSV(rpt *report.ComplianceReport, opts report.ExportOptions) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	// The generation-metadata block rides ahead of the header as
	// comment rows so the record grid itself stays rectangular.
	if opts.IncludeMetadata {
		criteria, err := json.Marshal(rpt.Criteria)
		if err != nil {
			return nil, errors.NewEncodingError("CSV_ENCODING_FAILED",
				"failed to encode report criteria").WithCause(err)
		}
		preamble := [][]string{
			{"# generated_at", rpt.GeneratedAt.UTC().Format(time.RFC3339)},
			{"# criteria", string(criteria)},
			{"# exported_by", exporterIdentity},
		}
		for _, line := range preamble {
			if err := w.Write(line); err != nil {
				return nil, errors.NewEncodingError("CSV_ENCODING_FAILED", "failed to write CSV preamble").WithCause(err)
			}
		}
	}

	if err := w.Write(csvHeaders); err != nil {
		return nil, errors.NewEncodingError("CSV_ENCODING_FAILED", "failed to write CSV header").WithCause(err)
	}

	for _, ev := range rpt.Events {
		meta := ""
		if len(ev.Metadata) > 0 {
			encoded, err := json.Marshal(ev.Metadata)
			if err != nil {
				return nil, errors.NewEncodingError("CSV_ENCODING_FAILED",
					"failed to encode event metadata").WithCause(err)
			}
			meta = string(encoded)
		}
		row := []string{
			ev.ID.String(),
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			ev.PrincipalID,
			ev.PrincipalType,
			ev.ResourceID,
			ev.ResourceType,
			ev.Action,
			ev.Status,
			ev.Outcome,
			strings.Join(ev.DataClasses, ";"),
			ev.CorrelationID,
			ev.EventHash,
			meta,
		}
		if err := w.Write(row); err != nil {
			return nil, errors.NewEncodingError("CSV_ENCODING_FAILED", "failed to write CSV row").WithCause(err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.NewEncodingError("CSV_ENCODING_FAILED", "failed to flush CSV output").WithCause(err)
	}
	return buf.Bytes(), nil
}

// xmlReport mirrors the report shape with concrete element names.
// Event metadata is a free-form map, which encoding/xml cannot marshal,
// so it travels as a JSON string inside its element.
type xmlReport struct {
	XMLName  xml.Name     `xml:"compliance_report"`
	Type     string       `xml:"type"`
	Metadata *xmlMetadata `xml:"metadata,omitempty"`
	Summary  xmlSummary   `xml:"summary"`
	Events   []xmlEvent   `xml:"events>event"`
}

// xmlMetadata is the generation-metadata block. Criteria is a free-form
// filter struct, so it travels as a JSON string inside its element.
type xmlMetadata struct {
	GeneratedAt string `xml:"generated_at"`
	Criteria    string `xml:"criteria"`
	ExportedBy  string `xml:"exported_by"`
}

type xmlSummary struct {
	TotalEvents         int      `xml:"total_events"`
	VerifiedEvents      int      `xml:"verified_events"`
	FailedVerifications int      `xml:"failed_verifications"`
	ComplianceScore     *float64 `xml:"compliance_score,omitempty"`
}

type xmlEvent struct {
	ID            string   `xml:"id"`
	Timestamp     string   `xml:"timestamp"`
	PrincipalID   string   `xml:"principal_id"`
	PrincipalType string   `xml:"principal_type,omitempty"`
	ResourceID    string   `xml:"resource_id"`
	ResourceType  string   `xml:"resource_type,omitempty"`
	Action        string   `xml:"action"`
	Status        string   `xml:"status"`
	Outcome       string   `xml:"outcome"`
	DataClasses   []string `xml:"data_classes>class,omitempty"`
	CorrelationID string   `xml:"correlation_id,omitempty"`
	EventHash     string   `xml:"event_hash,omitempty"`
	Metadata      string   `xml:"metadata,omitempty"`
}

func (e *Encoder) encodeXML(rpt *report.ComplianceReport, opts report.ExportOptions) ([]byte, error) {
	doc := xmlReport{
		Type: string(rpt.Type),
		Summary: xmlSummary{
			TotalEvents:         rpt.Summary.TotalEvents,
			VerifiedEvents:      rpt.Summary.VerifiedEvents,
			FailedVerifications: rpt.Summary.FailedVerifications,
			ComplianceScore:     rpt.Summary.ComplianceScore,
		},
		Events: make([]xmlEvent, 0, len(rpt.Events)),
	}
	if opts.IncludeMetadata {
		criteria, err := json.Marshal(rpt.Criteria)
		if err != nil {
			return nil, errors.NewEncodingError("XML_ENCODING_FAILED",
				"failed to encode report criteria").WithCause(err)
		}
		doc.Metadata = &xmlMetadata{
			GeneratedAt: rpt.GeneratedAt.UTC().Format(time.RFC3339),
			Criteria:    string(criteria),
			ExportedBy:  exporterIdentity,
		}
	}

	for _, ev := range rpt.Events {
		xe := xmlEvent{
			ID:            ev.ID.String(),
			Timestamp:     ev.Timestamp.UTC().Format(time.RFC3339Nano),
			PrincipalID:   ev.PrincipalID,
			PrincipalType: ev.PrincipalType,
			ResourceID:    ev.ResourceID,
			ResourceType:  ev.ResourceType,
			Action:        ev.Action,
			Status:        ev.Status,
			Outcome:       ev.Outcome,
			DataClasses:   ev.DataClasses,
			CorrelationID: ev.CorrelationID,
			EventHash:     ev.EventHash,
		}
		if len(ev.Metadata) > 0 {
			meta, err := json.Marshal(ev.Metadata)
			if err != nil {
				return nil, errors.NewEncodingError("XML_ENCODING_FAILED",
					"failed to encode event metadata").WithCause(err)
			}
			xe.Metadata = string(meta)
		}
		doc.Events = append(doc.Events, xe)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, errors.NewEncodingError("XML_ENCODING_FAILED", "failed to encode report as XML").WithCause(err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.NewEncodingError("XML_ENCODING_FAILED", "failed to finalize XML output").WithCause(err)
	}
	return buf.Bytes(), nil
}
