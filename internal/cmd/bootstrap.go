package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/formscout/formscout/internal/advisor"
	"github.com/formscout/formscout/internal/appid"
	"github.com/formscout/formscout/internal/config"
	"github.com/formscout/formscout/internal/core"
	"github.com/formscout/formscout/internal/core/crawler"
	"github.com/formscout/formscout/internal/core/engine"
	"github.com/formscout/formscout/internal/core/store"
	"github.com/formscout/formscout/internal/observability"
)

// app holds the wired lookup stack shared by the CLI commands and the server.
type app struct {
	cfg      *config.Config
	registry *core.Registry
	limiter  *engine.RateLimiter
	resolver *engine.Resolver
	advisor  *advisor.Advisor
	store    *store.Store
}

type bootstrapOptions struct {
	// noCache disables the result cache for this process even when configured.
	noCache bool
	// withAdvisor creates the Gemini client when credentials are present.
	withAdvisor bool
}

// bootstrap loads configuration and wires the registry, limiter, strategies,
// optional cache and optional advisor.
func bootstrap(ctx context.Context, opts bootstrapOptions) (*app, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, loadConfigError(fmt.Errorf("load config: %w", err))
	}

	registry, err := buildRegistry(cfg.Sources)
	if err != nil {
		return nil, loadConfigError(err)
	}

	limiter := engine.NewRateLimiter(registry.Sources())
	limiter.ApplyOverrides(cfg.RateLimits)
	limiter.ApplySafetyMargin(cfg.RateLimitMargin)

	fetcher := crawler.NewFetcher(userAgent(cfg.Crawler), cfg.Crawler.Timeout, cfg.Crawler.MaxRedirects)
	fetcher.MaxBodyBytes = cfg.Crawler.MaxBodyBytes

	rt := &app{cfg: cfg, registry: registry, limiter: limiter}
	rt.resolver = &engine.Resolver{
		Registry:    registry,
		Limiter:     limiter,
		Strategies:  buildStrategies(registry, fetcher, limiter),
		Validator:   &crawler.URLValidator{Fetcher: fetcher},
		Versions:    &crawler.VersionExtractor{Fetcher: fetcher},
		Workers:     cfg.Workers,
		ToolVersion: versionInfo.Version,
	}
	if logger := observability.Lookup(); logger != nil {
		rt.resolver.Logger = logger
	}

	if cfg.Cache.Enabled && !opts.noCache {
		rt.store = openCacheStore(ctx, cfg)
		if rt.store != nil {
			rt.resolver.Cache = rt.store
			rt.resolver.UseCache = true
			rt.resolver.CacheTTL = cfg.Cache.TTL
		}
	}

	if opts.withAdvisor {
		rt.advisor, err = buildAdvisor(ctx, cfg, rt.store)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	return rt, nil
}

// Close releases the cache store, if one was opened.
func (rt *app) Close() error {
	if rt == nil || rt.store == nil {
		return nil
	}
	return rt.store.Close()
}

// buildRegistry assembles the catalog: built-ins, then the operator catalog
// file (which may replace built-in entries by organization), then API keys.
func buildRegistry(cfg config.SourcesConfig) (*core.Registry, error) {
	var sources []core.FormSource
	if !cfg.DisableBuiltIn {
		sources = core.BuiltInSources()
	}
	if path := strings.TrimSpace(cfg.CatalogFile); path != "" {
		extra, err := core.LoadCatalogFile(path)
		if err != nil {
			return nil, err
		}
		sources = core.MergeSources(sources, extra...)
	}
	sources = core.ApplyAPIKeys(sources, cfg.APIKeys)

	registry, err := core.NewRegistry(sources...)
	if err != nil {
		return nil, fmt.Errorf("build source registry: %w", err)
	}
	return registry, nil
}

// buildStrategies orders discovery: direct API, search-page scrape, then
// each provider.
func buildStrategies(registry *core.Registry, fetcher *crawler.Fetcher, limiter *engine.RateLimiter) []engine.Strategy {
	strategies := []engine.Strategy{
		&crawler.APIStrategy{Fetcher: fetcher},
		&crawler.ScrapeStrategy{Fetcher: fetcher},
	}
	for _, provider := range crawler.ProviderStrategies(registry, fetcher, limiter) {
		strategies = append(strategies, provider)
	}
	return strategies
}

func userAgent(cfg config.CrawlerConfig) string {
	if ua := strings.TrimSpace(cfg.UserAgent); ua != "" {
		return ua
	}
	version := versionInfo.Version
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("%s/%s (+forms lookup)", appid.BinaryName, version)
}

// openCacheStore opens and migrates the cache database. Failures disable
// caching for the process rather than failing the lookup.
func openCacheStore(ctx context.Context, cfg *config.Config) *store.Store {
	db, err := openStore(ctx, cfg)
	if err != nil {
		if logger := observability.Lookup(); logger != nil {
			logger.Warn("Result cache unavailable; continuing without it", zap.Error(err))
		}
		return nil
	}
	return db
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// buildAdvisor returns a disabled advisor when no API key is configured.
func buildAdvisor(ctx context.Context, cfg *config.Config, db *store.Store) (*advisor.Advisor, error) {
	if !cfg.Advisor.Enabled() {
		return advisor.New(nil, cfg.Advisor.Model)
	}

	generator, err := advisor.NewGeminiGenerator(ctx, cfg.Advisor.APIKey, cfg.Advisor.Model, cfg.Advisor.Timeout)
	if err != nil {
		return nil, err
	}
	a, err := advisor.New(generator, generator.Model())
	if err != nil {
		return nil, err
	}
	if logger := observability.Lookup(); logger != nil {
		a.Logger = logger
	}
	if db != nil {
		a.Cache = db
		a.CacheTTL = cfg.Cache.AdvisorTTL
	}
	return a, nil
}
