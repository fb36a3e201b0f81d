package reporting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/compliance-backend/internal/domain/audit"
	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// memConfigRepo is an in-memory report.ConfigRepository.
type memConfigRepo struct {
	mu      sync.Mutex
	configs map[uuid.UUID]*report.Config
	listErr error
}

func newMemConfigRepo() *memConfigRepo {
	return &memConfigRepo{configs: make(map[uuid.UUID]*report.Config)}
}

func (m *memConfigRepo) Create(_ context.Context, cfg *report.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ID] = cfg
	return nil
}

func (m *memConfigRepo) Update(_ context.Context, cfg *report.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[cfg.ID]; !ok {
		return errors.NewNotFoundError("report config")
	}
	m.configs[cfg.ID] = cfg
	return nil
}

func (m *memConfigRepo) Delete(_ context.Context, orgID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok || cfg.OrganizationID != orgID {
		return errors.NewNotFoundError("report config")
	}
	delete(m.configs, id)
	return nil
}

func (m *memConfigRepo) GetByID(_ context.Context, orgID, id uuid.UUID) (*report.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok || cfg.OrganizationID != orgID {
		return nil, errors.NewNotFoundError("report config")
	}
	clone := *cfg
	return &clone, nil
}

func (m *memConfigRepo) ListByOrganization(_ context.Context, orgID uuid.UUID) ([]*report.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*report.Config, 0)
	for _, cfg := range m.configs {
		if cfg.OrganizationID == orgID {
			clone := *cfg
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memConfigRepo) ListEnabled(_ context.Context) ([]*report.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*report.Config, 0)
	for _, cfg := range m.configs {
		if cfg.Enabled {
			clone := *cfg
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// memExecRepo is an in-memory report.ExecutionRepository with the same
// (config, period) uniqueness and compare-and-swap semantics as the
// PostgreSQL implementation.
type memExecRepo struct {
	mu      sync.Mutex
	execs   map[uuid.UUID]*report.Execution
	periods map[string]bool
}

func newMemExecRepo() *memExecRepo {
	return &memExecRepo{
		execs:   make(map[uuid.UUID]*report.Execution),
		periods: make(map[string]bool),
	}
}

func periodGuardKey(configID *uuid.UUID, periodKey string) string {
	return fmt.Sprintf("%s|%s", configID, periodKey)
}

func (m *memExecRepo) Create(_ context.Context, exec *report.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *exec
	m.execs[exec.ID] = &clone
	return nil
}

func (m *memExecRepo) CreateScheduled(_ context.Context, exec *report.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	guard := periodGuardKey(exec.ReportConfigID, exec.PeriodKey)
	if m.periods[guard] {
		return errors.NewConcurrencyError("period already triggered for this config")
	}
	m.periods[guard] = true
	clone := *exec
	m.execs[exec.ID] = &clone
	return nil
}

func (m *memExecRepo) UpdateStatus(_ context.Context, exec *report.Execution, from report.ExecutionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.execs[exec.ID]
	if !ok || stored.OrganizationID != exec.OrganizationID {
		return errors.NewNotFoundError("report execution")
	}
	if stored.Status != from {
		return errors.NewConcurrencyError("execution status changed concurrently")
	}
	clone := *exec
	m.execs[exec.ID] = &clone
	return nil
}

func (m *memExecRepo) GetByID(_ context.Context, orgID, id uuid.UUID) (*report.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.execs[id]
	if !ok || exec.OrganizationID != orgID {
		return nil, errors.NewNotFoundError("report execution")
	}
	clone := *exec
	return &clone, nil
}

func (m *memExecRepo) ListByConfig(_ context.Context, orgID, configID uuid.UUID, _, _ int) ([]*report.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*report.Execution, 0)
	for _, exec := range m.execs {
		if exec.OrganizationID == orgID && exec.ReportConfigID != nil && *exec.ReportConfigID == configID {
			clone := *exec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memExecRepo) ListByOrganization(_ context.Context, orgID uuid.UUID, _, _ int) ([]*report.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*report.Execution, 0)
	for _, exec := range m.execs {
		if exec.OrganizationID == orgID {
			clone := *exec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memExecRepo) byID(id uuid.UUID) *report.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execs[id]
}

// memQueryRepo serves a fixed event slice and records the org it was
// queried for.
type memQueryRepo struct {
	mu       sync.Mutex
	events   []*audit.Event
	queryErr error
	lastOrg  uuid.UUID
}

func (m *memQueryRepo) Query(_ context.Context, orgID uuid.UUID, _ audit.EventFilter, _ audit.Sort, limit, offset int) ([]*audit.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	m.lastOrg = orgID
	out := make([]*audit.Event, 0)
	for _, ev := range m.events {
		if ev.OrganizationID == orgID {
			out = append(out, ev)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memQueryRepo) Count(_ context.Context, orgID uuid.UUID, _ audit.EventFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, ev := range m.events {
		if ev.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

// memVerLog is an in-memory append-only verification log.
type memVerLog struct {
	mu        sync.Mutex
	records   []*audit.VerificationRecord
	appendErr error
}

func (m *memVerLog) Append(_ context.Context, records []*audit.VerificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memVerLog) ListByEvent(_ context.Context, orgID, eventID uuid.UUID) ([]*audit.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*audit.VerificationRecord, 0)
	for _, rec := range m.records {
		if rec.OrganizationID == orgID && rec.EventID == eventID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memVerLog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// hashedEvent builds a valid audit event with its canonical hash set.
func hashedEvent(t *testing.T, orgID uuid.UUID, ts time.Time, previousHash string) *audit.Event {
	t.Helper()
	ev := &audit.Event{
		ID:             uuid.New(),
		OrganizationID: orgID,
		PrincipalID:    "user-1",
		PrincipalType:  "user",
		ResourceID:     "record-9",
		ResourceType:   "phi_record",
		Action:         "record.read",
		Status:         "completed",
		Outcome:        "success",
		DataClasses:    []string{"phi"},
		Timestamp:      ts,
		TimestampNano:  ts.UnixNano(),
		EventVersion:   audit.CurrentEventVersion,
		HashAlgorithm:  audit.HashAlgorithmSHA256,
		PreviousHash:   previousHash,
	}
	hash, err := audit.ComputeHash(ev)
	require.NoError(t, err)
	ev.EventHash = hash
	return ev
}

// validConfig builds a daily email config owned by orgID.
func validConfig(t *testing.T, orgID uuid.UUID, name string, rt report.ReportType) *report.Config {
	t.Helper()
	cfg, err := report.NewConfig(
		orgID,
		name,
		rt,
		report.Criteria{DateRange: report.DateRange{Period: report.PeriodLastDay}},
		report.Schedule{Frequency: report.FrequencyDaily, TimeOfDay: "02:00", Timezone: "UTC"},
		report.DeliveryConfig{
			Method: report.DeliveryEmail,
			Email:  &report.EmailDeliveryConfig{Recipients: []string{"audit@example.com"}},
		},
		report.ExportOptions{Format: report.FormatJSON},
		"tester",
	)
	require.NoError(t, err)
	return cfg
}
