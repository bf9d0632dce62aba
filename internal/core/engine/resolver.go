package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/formscout/formscout/internal/core"
	"github.com/formscout/formscout/internal/metrics"
)

// DefaultWorkers bounds concurrent lookups in a batch.
const DefaultWorkers = 4

// Strategy is one way of locating a form document for a source.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, source core.FormSource, formName string) (*core.CrawlResult, error)
}

// LinkValidator confirms a candidate URL is live.
type LinkValidator interface {
	Validate(ctx context.Context, url string) (bool, error)
}

// VersionReader pulls revision information out of a document.
type VersionReader interface {
	Extract(ctx context.Context, source core.FormSource, url string) *core.VersionInfo
}

// ResultCache stores resolved lookups.
type ResultCache interface {
	GetCachedResult(ctx context.Context, organization, formName string) (*core.CrawlResult, error)
	SetCachedResult(ctx context.Context, organization, formName string, result *core.CrawlResult, ttl time.Duration) error
}

// Logger is the subset of structured logging the resolver emits.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Resolver turns a form name and a jurisdiction hint into a validated,
// versioned document URL.
type Resolver struct {
	Registry   *core.Registry
	Limiter    *RateLimiter
	Strategies []Strategy
	Validator  LinkValidator
	Versions   VersionReader

	Cache    ResultCache
	UseCache bool
	CacheTTL time.Duration

	Logger      Logger
	Workers     int
	ToolVersion string
	Clock       func() time.Time
}

// Resolve runs the pipeline for one form. Failures are reported as a
// *core.LookupError; a cancelled context is returned as-is.
//
// No request leaves the process for an unknown jurisdiction, and a source's
// budget is spent once per call regardless of how many strategies run.
func (r *Resolver) Resolve(ctx context.Context, formName, jurisdiction string) (*core.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	requestedAt := r.now()

	formName = strings.TrimSpace(formName)
	jurisdiction = strings.TrimSpace(jurisdiction)

	source, ok := r.Registry.FindSourceForState(jurisdiction)
	if !ok {
		metrics.RecordLookup("source_not_found", time.Since(start))
		return nil, &core.LookupError{
			Kind:         core.KindSourceNotFound,
			Form:         formName,
			Jurisdiction: jurisdiction,
		}
	}

	notFound := &core.LookupError{
		Kind:         core.KindNotFound,
		Form:         formName,
		Jurisdiction: jurisdiction,
		Organization: source.Organization,
	}
	if formName == "" {
		metrics.RecordLookup("not_found", time.Since(start))
		return nil, notFound
	}

	if cached := r.cached(ctx, source, formName); cached != nil {
		metrics.RecordLookup("cached", time.Since(start))
		return cached, nil
	}

	// A cancelled lookup must not spend the organization's budget.
	if err := ctx.Err(); err != nil {
		metrics.RecordLookup("canceled", time.Since(start))
		return nil, err
	}

	if !r.Limiter.TryAcquire(source.Organization) {
		metrics.RecordRateLimitDenial(source.Organization)
		metrics.RecordLookup("rate_limited", time.Since(start))
		return nil, &core.LookupError{
			Kind:         core.KindRateLimited,
			Form:         formName,
			Jurisdiction: jurisdiction,
			Organization: source.Organization,
			RetryAfter:   r.Limiter.Wait(source.Organization),
		}
	}

	result, err := r.discover(ctx, source, formName)
	if err != nil {
		return nil, err
	}
	if result == nil {
		metrics.RecordLookup("not_found", time.Since(start))
		return nil, notFound
	}

	valid, err := r.validate(ctx, result.URL)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	metrics.RecordLinkValidation(valid)
	if !valid {
		fields := []zap.Field{
			zap.String("organization", source.Organization),
			zap.String("form", formName),
			zap.String("url", result.URL),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		r.logger().Info("discarding unreachable form link", fields...)
		metrics.RecordLookup("not_found", time.Since(start))
		return nil, notFound
	}

	if result.Version == "" && r.Versions != nil {
		if info := r.Versions.Extract(ctx, source, result.URL); info != nil {
			result.Version = info.Version
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	result.FormName = formName
	result.IsValid = true
	if result.Source == "" {
		result.Source = source.Organization
	}
	result.Provenance = core.Provenance{
		LookupID:    uuid.NewString(),
		RequestedAt: requestedAt,
		ResolvedAt:  r.now(),
		Provider:    result.Source,
		ToolVersion: r.ToolVersion,
	}

	r.store(ctx, source, formName, result)
	metrics.RecordLookup("resolved", time.Since(start))
	return result, nil
}

// ResolveBatch resolves many requests with bounded concurrency. Per-item
// lookup failures are reported in the item; only context cancellation
// aborts the batch.
func (r *Resolver) ResolveBatch(ctx context.Context, requests []core.FormRequest) (*core.BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	items := make([]core.BatchItem, len(requests))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers())

	for i, req := range requests {
		items[i].Request = req
		group.Go(func() error {
			result, err := r.Resolve(groupCtx, req.FormName, req.Jurisdiction)
			if err != nil {
				lookupErr, ok := core.AsLookupError(err)
				if !ok {
					return err
				}
				items[i].Error = lookupErr
				return nil
			}
			items[i].Result = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	batch := &core.BatchResult{
		Items:       items,
		Total:       len(items),
		CompletedAt: r.now(),
	}
	for _, item := range items {
		if item.Result != nil {
			batch.Resolved++
		}
	}
	return batch, nil
}

// discover runs strategies in order and returns the first usable result.
// Strategy errors are logged and treated as "not found here".
func (r *Resolver) discover(ctx context.Context, source core.FormSource, formName string) (*core.CrawlResult, error) {
	for _, strategy := range r.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strategy == nil {
			continue
		}

		result, err := strategy.Attempt(ctx, source, formName)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			metrics.RecordStrategyAttempt(strategy.Name(), "error")
			r.logger().Debug("strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.String("organization", source.Organization),
				zap.String("form", formName),
				zap.Error(err),
			)
			continue
		}
		if result == nil || strings.TrimSpace(result.URL) == "" {
			metrics.RecordStrategyAttempt(strategy.Name(), "miss")
			continue
		}

		metrics.RecordStrategyAttempt(strategy.Name(), "hit")
		return result, nil
	}
	return nil, nil
}

func (r *Resolver) validate(ctx context.Context, url string) (bool, error) {
	if r.Validator == nil {
		return true, nil
	}
	return r.Validator.Validate(ctx, url)
}

func (r *Resolver) cached(ctx context.Context, source core.FormSource, formName string) *core.CrawlResult {
	if !r.UseCache || r.Cache == nil {
		return nil
	}
	result, err := r.Cache.GetCachedResult(ctx, source.Organization, formName)
	if err != nil {
		r.logger().Warn("cache read failed", zap.String("organization", source.Organization), zap.Error(err))
		return nil
	}
	metrics.RecordCacheLookup(result != nil)
	return result
}

func (r *Resolver) store(ctx context.Context, source core.FormSource, formName string, result *core.CrawlResult) {
	if !r.UseCache || r.Cache == nil || r.CacheTTL <= 0 {
		return
	}
	if err := r.Cache.SetCachedResult(ctx, source.Organization, formName, result, r.CacheTTL); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger().Warn("cache write failed", zap.String("organization", source.Organization), zap.Error(err))
	}
}

func (r *Resolver) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return DefaultWorkers
}

func (r *Resolver) logger() Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

func (r *Resolver) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
