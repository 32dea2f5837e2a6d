package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/printworks/storefront/internal/jobs"
	"github.com/printworks/storefront/internal/pricing"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const warmTimeout = 20 * time.Second

// ServiceLister lists services to warm.
type ServiceLister interface {
	ListServices(ctx context.Context, filters pricing.ListFilters) ([]pricing.Service, error)
}

// PricingWarmupJob pre-populates the pricing cache for active services.
type PricingWarmupJob struct {
	Services ServiceLister
	Source   pricing.SnapshotSource
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewPricingWarmupJob wires dependencies for the warmup handler. source is
// normally a *pricing.CachedSource so that each load fills redis.
func NewPricingWarmupJob(services ServiceLister, source pricing.SnapshotSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *PricingWarmupJob {
	return &PricingWarmupJob{Services: services, Source: source, Logger: logger, Metrics: metrics}
}

// Handle processes pricing warmup tasks.
func (j *PricingWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("pricing warmup: handler not configured")
	}
	var payload PricingWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("pricing warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	return j.Warm(ctx, payload)
}

// Warm loads every requested snapshot. Services that vanished since the task
// was queued are skipped; other failures are reported together.
func (j *PricingWarmupJob) Warm(ctx context.Context, payload PricingWarmupPayload) (resultErr error) {
	tracker := j.metrics().Track(TaskPricingWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("version", payload.Version))
	start := time.Now()

	slugs := payload.Slugs
	if len(slugs) == 0 {
		if j.Services == nil {
			return errors.New("pricing warmup: service lister not configured")
		}
		services, err := j.Services.ListServices(ctx, pricing.ListFilters{ActiveOnly: true})
		if err != nil {
			logger.Error("list services for warmup", slog.Any("error", err))
			return err
		}
		for _, svc := range services {
			slugs = append(slugs, svc.Slug)
		}
	}
	if len(slugs) == 0 {
		logger.Info("no services to warm")
		return nil
	}

	var (
		warmed int
		errs   []error
	)
	for _, slug := range slugs {
		err := j.warmOne(ctx, slug)
		switch {
		case err == nil:
			warmed++
		case errors.Is(err, pricing.ErrNotFound):
			logger.Debug("skip missing service", slog.String("slug", slug))
		default:
			logger.Warn("warm service", slog.String("slug", slug), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", slug, err))
		}
	}
	j.metrics().AddWarmed(warmed, len(errs))
	logger.Info("completed pricing warmup", slog.Int("services", warmed), slog.Int("failed", len(errs)), slog.Duration("duration", time.Since(start)))
	return errors.Join(errs...)
}

func (j *PricingWarmupJob) warmOne(ctx context.Context, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()
	_, err := j.Source.Snapshot(ctx, slug)
	return err
}

func (j *PricingWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPricingWarmup))
	}
	return slog.Default().With(slog.String("job", TaskPricingWarmup))
}

func (j *PricingWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
