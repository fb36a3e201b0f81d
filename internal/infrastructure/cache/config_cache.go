package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// CachedConfigRepository decorates a report.ConfigRepository with a
// cache-aside layer over per-config and per-organization list entries.
// Cache failures degrade gracefully: a broken cache never fails a read
// or write, it only loses the speedup.
type CachedConfigRepository struct {
	inner  report.ConfigRepository
	cache  Cache
	logger *zap.Logger
	ttl    time.Duration
}

// NewCachedConfigRepository wraps repo with a read-through cache. A zero
// ttl falls back to DefaultConfigTTL.
func NewCachedConfigRepository(inner report.ConfigRepository, cache Cache, logger *zap.Logger, ttl time.Duration) *CachedConfigRepository {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &CachedConfigRepository{
		inner:  inner,
		cache:  cache,
		logger: logger,
		ttl:    ttl,
	}
}

func configKey(orgID, id uuid.UUID) string {
	return ConfigPrefix + orgID.String() + ":" + id.String()
}

func configListKey(orgID uuid.UUID) string {
	return ConfigListPrefix + orgID.String()
}

func (r *CachedConfigRepository) Create(ctx context.Context, cfg *report.Config) error {
	if err := r.inner.Create(ctx, cfg); err != nil {
		return err
	}
	r.invalidate(ctx, cfg.OrganizationID, cfg.ID)
	return nil
}

func (r *CachedConfigRepository) Update(ctx context.Context, cfg *report.Config) error {
	if err := r.inner.Update(ctx, cfg); err != nil {
		return err
	}
	r.invalidate(ctx, cfg.OrganizationID, cfg.ID)
	return nil
}

func (r *CachedConfigRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	if err := r.inner.Delete(ctx, orgID, id); err != nil {
		return err
	}
	r.invalidate(ctx, orgID, id)
	return nil
}

func (r *CachedConfigRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*report.Config, error) {
	key := configKey(orgID, id)

	var cached report.Config
	err := r.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if _, miss := err.(ErrCacheKeyNotFound); !miss {
		r.logger.Warn("config cache read failed, falling through",
			zap.String("key", key),
			zap.Error(err))
	}

	cfg, err := r.inner.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetJSON(ctx, key, cfg, r.ttl); err != nil {
		r.logger.Warn("config cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return cfg, nil
}

func (r *CachedConfigRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*report.Config, error) {
	key := configListKey(orgID)

	var cached []*report.Config
	err := r.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if _, miss := err.(ErrCacheKeyNotFound); !miss {
		r.logger.Warn("config list cache read failed, falling through",
			zap.String("key", key),
			zap.Error(err))
	}

	configs, err := r.inner.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetJSON(ctx, key, configs, r.ttl); err != nil {
		r.logger.Warn("config list cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return configs, nil
}

// ListEnabled feeds the scheduler tick and must always see fresh enabled
// flags, so it bypasses the cache entirely.
func (r *CachedConfigRepository) ListEnabled(ctx context.Context) ([]*report.Config, error) {
	return r.inner.ListEnabled(ctx)
}

func (r *CachedConfigRepository) invalidate(ctx context.Context, orgID, id uuid.UUID) {
	if err := r.cache.Delete(ctx, configKey(orgID, id), configListKey(orgID)); err != nil {
		r.logger.Warn("config cache invalidation failed",
			zap.String("org_id", orgID.String()),
			zap.String("config_id", id.String()),
			zap.Error(err))
	}
}
