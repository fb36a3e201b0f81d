package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// fakeConfigRepository counts calls so tests can observe cache hits.
type fakeConfigRepository struct {
	configs      map[uuid.UUID]*report.Config
	getCalls     int
	listCalls    int
	enabledCalls int
}

func newFakeConfigRepository() *fakeConfigRepository {
	return &fakeConfigRepository{configs: make(map[uuid.UUID]*report.Config)}
}

func (f *fakeConfigRepository) Create(_ context.Context, cfg *report.Config) error {
	f.configs[cfg.ID] = cfg
	return nil
}

func (f *fakeConfigRepository) Update(_ context.Context, cfg *report.Config) error {
	f.configs[cfg.ID] = cfg
	return nil
}

func (f *fakeConfigRepository) Delete(_ context.Context, _, id uuid.UUID) error {
	delete(f.configs, id)
	return nil
}

func (f *fakeConfigRepository) GetByID(_ context.Context, orgID, id uuid.UUID) (*report.Config, error) {
	f.getCalls++
	cfg, ok := f.configs[id]
	if !ok || cfg.OrganizationID != orgID {
		return nil, errors.NewNotFoundError("report config")
	}
	return cfg, nil
}

func (f *fakeConfigRepository) ListByOrganization(_ context.Context, orgID uuid.UUID) ([]*report.Config, error) {
	f.listCalls++
	out := make([]*report.Config, 0)
	for _, cfg := range f.configs {
		if cfg.OrganizationID == orgID {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (f *fakeConfigRepository) ListEnabled(_ context.Context) ([]*report.Config, error) {
	f.enabledCalls++
	out := make([]*report.Config, 0)
	for _, cfg := range f.configs {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func newTestConfig(t *testing.T, orgID uuid.UUID, name string) *report.Config {
	t.Helper()
	cfg, err := report.NewConfig(
		orgID,
		name,
		report.ReportTypeHIPAA,
		report.Criteria{DateRange: report.DateRange{Period: report.PeriodLastMonth}},
		report.Schedule{Frequency: report.FrequencyDaily, TimeOfDay: "02:00", Timezone: "UTC"},
		report.DeliveryConfig{
			Method: report.DeliveryEmail,
			Email:  &report.EmailDeliveryConfig{Recipients: []string{"compliance@example.com"}},
		},
		report.ExportOptions{Format: report.FormatJSON},
		"tester",
	)
	require.NoError(t, err)
	return cfg
}

func setupCachedRepo(t *testing.T) (*CachedConfigRepository, *fakeConfigRepository, func()) {
	redis, _, cleanup := setupTestRedis(t)
	inner := newFakeConfigRepository()
	repo := NewCachedConfigRepository(inner, redis, zaptest.NewLogger(t), time.Minute)
	return repo, inner, cleanup
}

func TestCachedConfigRepository_GetByID(t *testing.T) {
	repo, inner, cleanup := setupCachedRepo(t)
	defer cleanup()

	ctx := context.Background()
	orgID := uuid.New()
	cfg := newTestConfig(t, orgID, "daily-hipaa")
	require.NoError(t, repo.Create(ctx, cfg))

	t.Run("first read hits store, second read hits cache", func(t *testing.T) {
		got, err := repo.GetByID(ctx, orgID, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, cfg.ID, got.ID)
		assert.Equal(t, 1, inner.getCalls)

		got, err = repo.GetByID(ctx, orgID, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, cfg.Name, got.Name)
		assert.Equal(t, 1, inner.getCalls, "second read should be served from cache")
	})

	t.Run("update invalidates the cached entry", func(t *testing.T) {
		cfg.Name = "daily-hipaa-v2"
		require.NoError(t, repo.Update(ctx, cfg))

		got, err := repo.GetByID(ctx, orgID, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, "daily-hipaa-v2", got.Name)
		assert.Equal(t, 2, inner.getCalls, "invalidated read should hit the store")
	})
}

func TestCachedConfigRepository_ListByOrganization(t *testing.T) {
	repo, inner, cleanup := setupCachedRepo(t)
	defer cleanup()

	ctx := context.Background()
	orgID := uuid.New()
	require.NoError(t, repo.Create(ctx, newTestConfig(t, orgID, "report-a")))
	require.NoError(t, repo.Create(ctx, newTestConfig(t, orgID, "report-b")))

	list, err := repo.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 1, inner.listCalls)

	list, err = repo.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 1, inner.listCalls, "second list should be served from cache")

	// A new config for the org invalidates the list entry.
	require.NoError(t, repo.Create(ctx, newTestConfig(t, orgID, "report-c")))

	list, err = repo.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, 2, inner.listCalls)
}

func TestCachedConfigRepository_ListEnabledBypassesCache(t *testing.T) {
	repo, inner, cleanup := setupCachedRepo(t)
	defer cleanup()

	ctx := context.Background()
	orgID := uuid.New()
	require.NoError(t, repo.Create(ctx, newTestConfig(t, orgID, "report-a")))

	_, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	_, err = repo.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.enabledCalls, "scheduler reads always hit the store")
}

func TestCachedConfigRepository_DegradesWithoutCache(t *testing.T) {
	redis, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	inner := newFakeConfigRepository()
	repo := NewCachedConfigRepository(inner, redis, zaptest.NewLogger(t), time.Minute)

	ctx := context.Background()
	orgID := uuid.New()
	cfg := newTestConfig(t, orgID, "resilient")
	require.NoError(t, repo.Create(ctx, cfg))

	// Kill the cache backend; reads must still succeed from the store.
	mr.Close()

	got, err := repo.GetByID(ctx, orgID, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
}
