package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type dashboardStore interface {
	Summary(ctx context.Context, institutionID string, year int, now time.Time) (*models.DashboardSummary, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the institution overview and caches it per academic year.
type DashboardService struct {
	store   dashboardStore
	cache   viewCache
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	cfg     DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(store dashboardStore, cache viewCache, metrics *MetricsService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	return &DashboardService{store: store, cache: cache, metrics: metrics, logger: logger, now: time.Now, cfg: cfg}
}

// Summary returns the overview of an institution and indicates cache utilisation. A zero year
// means the current calendar year.
func (s *DashboardService) Summary(ctx context.Context, institutionID string, year int) (*models.DashboardSummary, bool, error) {
	if institutionID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "institution_id is required")
	}
	now := s.now().UTC()
	if year == 0 {
		year = now.Year()
	}
	if year < 2000 || year > 2100 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "academic year out of range")
	}

	key := fmt.Sprintf("%s%s:%d", cachePrefixDashboard, institutionID, year)
	var cached models.DashboardSummary
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return &cached, true, nil
	}

	summary, err := s.store.Summary(ctx, institutionID, year, now)
	if err != nil {
		return nil, false, internalError(err, "failed to compute dashboard")
	}
	summary.InstitutionID = institutionID
	summary.AcademicYear = year
	summary.GeneratedAt = now
	if err := s.cache.Set(ctx, key, summary, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
	return summary, false, nil
}

// System returns the in-process counters snapshot.
func (s *DashboardService) System() models.SystemMetrics {
	return s.metrics.Snapshot()
}
