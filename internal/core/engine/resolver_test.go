package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/formscout/formscout/internal/core"
	"github.com/formscout/formscout/internal/core/crawler"
)

type stubStrategy struct {
	name   string
	result *core.CrawlResult
	err    error

	mu    sync.Mutex
	calls []string
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, source core.FormSource, formName string) (*core.CrawlResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, source.Organization+"/"+formName)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return nil, nil
	}
	copied := *s.result
	return &copied, nil
}

func (s *stubStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubValidator struct {
	valid bool
	err   error
	seen  atomic.Int32
}

func (v *stubValidator) Validate(ctx context.Context, url string) (bool, error) {
	v.seen.Add(1)
	return v.valid, v.err
}

type stubVersions struct {
	version string
	calls   atomic.Int32
}

func (v *stubVersions) Extract(ctx context.Context, source core.FormSource, url string) *core.VersionInfo {
	v.calls.Add(1)
	if v.version == "" {
		return nil
	}
	return &core.VersionInfo{Version: v.version, IsLatest: true}
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*core.CrawlResult
}

func (c *memoryCache) GetCachedResult(ctx context.Context, organization, formName string) (*core.CrawlResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[organization+"|"+formName]
	if !ok {
		return nil, nil
	}
	copied := *result
	copied.Provenance.FromCache = true
	return &copied, nil
}

func (c *memoryCache) SetCachedResult(ctx context.Context, organization, formName string, result *core.CrawlResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]*core.CrawlResult)
	}
	copied := *result
	c.entries[organization+"|"+formName] = &copied
	return nil
}

func builtInRegistry(t *testing.T) *core.Registry {
	t.Helper()
	registry, err := core.NewRegistry(core.BuiltInSources()...)
	require.NoError(t, err)
	return registry
}

func newTestResolver(t *testing.T, strategies ...Strategy) *Resolver {
	t.Helper()
	registry := builtInRegistry(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(registry.Sources())
	limiter.Clock = clock.Now
	return &Resolver{
		Registry:    registry,
		Limiter:     limiter,
		Strategies:  strategies,
		Validator:   &stubValidator{valid: true},
		Versions:    &stubVersions{version: "12/23"},
		ToolVersion: "test",
		Clock:       clock.Now,
	}
}

func TestResolveUnknownJurisdiction(t *testing.T) {
	strategy := &stubStrategy{name: "scrape"}
	resolver := newTestResolver(t, strategy)

	result, err := resolver.Resolve(context.Background(), "RPA", "Nevada")
	require.Nil(t, result)
	require.ErrorIs(t, err, core.ErrSourceNotFound)

	lookupErr, ok := core.AsLookupError(err)
	require.True(t, ok)
	require.Equal(t, core.KindSourceNotFound, lookupErr.Kind)
	require.Equal(t, "Nevada", lookupErr.Jurisdiction)
	require.Zero(t, strategy.callCount())

	for _, state := range resolver.Limiter.Snapshot() {
		require.InDelta(t, float64(state.Capacity), state.Tokens, 1e-9, state.Organization)
	}
}

func TestResolveHintIsCaseSensitive(t *testing.T) {
	resolver := newTestResolver(t, &stubStrategy{name: "scrape"})
	_, err := resolver.Resolve(context.Background(), "RPA", "california")
	require.ErrorIs(t, err, core.ErrSourceNotFound)
}

func TestResolveFirstStrategyWins(t *testing.T) {
	api := &stubStrategy{name: "api", result: &core.CrawlResult{
		URL:      "https://www.car.org/api/RPA.pdf",
		Version:  "6.24",
		Strategy: core.StrategyAPI,
	}}
	scrape := &stubStrategy{name: "scrape", result: &core.CrawlResult{URL: "https://www.car.org/forms/RPA.pdf"}}
	resolver := newTestResolver(t, api, scrape)
	versions := resolver.Versions.(*stubVersions)

	result, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.NoError(t, err)
	require.Equal(t, "https://www.car.org/api/RPA.pdf", result.URL)
	require.Equal(t, "6.24", result.Version)
	require.Equal(t, core.StrategyAPI, result.Strategy)
	require.Equal(t, "California Association of REALTORS®", result.Source)
	require.True(t, result.IsValid)
	require.Equal(t, "RPA", result.FormName)
	require.NotEmpty(t, result.Provenance.LookupID)
	require.Equal(t, "test", result.Provenance.ToolVersion)
	require.Zero(t, scrape.callCount())
	require.Zero(t, versions.calls.Load())
}

func TestResolveFallsThroughFailingStrategies(t *testing.T) {
	api := &stubStrategy{name: "api", err: errors.New("connection refused")}
	scrape := &stubStrategy{name: "scrape"}
	provider := &stubStrategy{name: "provider:ziplogix", result: &core.CrawlResult{
		URL:      "https://cdn.ziplogix.com/rpa.pdf",
		Source:   core.ProviderZipLogix,
		Strategy: core.StrategyProvider,
	}}
	resolver := newTestResolver(t, api, scrape, provider)

	result, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.ziplogix.com/rpa.pdf", result.URL)
	require.Equal(t, core.ProviderZipLogix, result.Source)
	require.Equal(t, core.ProviderZipLogix, result.Provenance.Provider)
	require.Equal(t, "12/23", result.Version)
	require.Equal(t, 1, api.callCount())
	require.Equal(t, 1, scrape.callCount())
}

func TestResolveNothingFound(t *testing.T) {
	resolver := newTestResolver(t, &stubStrategy{name: "api"}, &stubStrategy{name: "scrape"})

	result, err := resolver.Resolve(context.Background(), "TDS", "California")
	require.Nil(t, result)
	require.ErrorIs(t, err, core.ErrNotFound)

	lookupErr, ok := core.AsLookupError(err)
	require.True(t, ok)
	require.Equal(t, "California Association of REALTORS®", lookupErr.Organization)
}

func TestResolveDeadLinkIsNotFound(t *testing.T) {
	scrape := &stubStrategy{name: "scrape", result: &core.CrawlResult{URL: "https://www.car.org/forms/RPA.pdf"}}
	resolver := newTestResolver(t, scrape)
	resolver.Validator = &stubValidator{valid: false}

	result, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.Nil(t, result)
	require.ErrorIs(t, err, core.ErrNotFound)

	resolver.Validator = &stubValidator{valid: false, err: errors.New("timeout")}
	_, err = resolver.Resolve(context.Background(), "RPA", "California")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestResolveRateLimited(t *testing.T) {
	scrape := &stubStrategy{name: "scrape", result: &core.CrawlResult{URL: "https://www.hawaiirealtors.com/forms/PC.pdf"}}
	resolver := newTestResolver(t, scrape)
	resolver.Limiter.ApplyOverrides(map[string]int{"Hawaii REALTORS®": 1})

	_, err := resolver.Resolve(context.Background(), "PC", "Hawaii")
	require.NoError(t, err)

	result, err := resolver.Resolve(context.Background(), "PC", "Hawaii")
	require.Nil(t, result)
	require.ErrorIs(t, err, core.ErrRateLimited)

	lookupErr, ok := core.AsLookupError(err)
	require.True(t, ok)
	require.Equal(t, "Hawaii REALTORS®", lookupErr.Organization)
	require.Equal(t, time.Minute, lookupErr.RetryAfter)
	require.Equal(t, 1, scrape.callCount())
}

func TestResolveSpendsOneTokenPerCall(t *testing.T) {
	strategies := []Strategy{
		&stubStrategy{name: "api"},
		&stubStrategy{name: "scrape"},
		&stubStrategy{name: "provider:ziplogix"},
		&stubStrategy{name: "provider:dotloop"},
	}
	resolver := newTestResolver(t, strategies...)

	_, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.ErrorIs(t, err, core.ErrNotFound)

	for _, state := range resolver.Limiter.Snapshot() {
		if state.Organization == "California Association of REALTORS®" {
			require.InDelta(t, float64(state.Capacity-1), state.Tokens, 1e-9)
			continue
		}
		require.InDelta(t, float64(state.Capacity), state.Tokens, 1e-9, state.Organization)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	scrape := &stubStrategy{name: "scrape", result: &core.CrawlResult{URL: "https://www.car.org/forms/RPA.pdf"}}
	resolver := newTestResolver(t, scrape)

	first, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.NoError(t, err)

	require.Equal(t, first.URL, second.URL)
	require.Equal(t, first.Version, second.Version)
	require.Equal(t, first.Source, second.Source)
	require.NotEqual(t, first.Provenance.LookupID, second.Provenance.LookupID)
}

func TestResolveEmptyFormName(t *testing.T) {
	scrape := &stubStrategy{name: "scrape", result: &core.CrawlResult{URL: "https://www.car.org/forms/RPA.pdf"}}
	resolver := newTestResolver(t, scrape)

	_, err := resolver.Resolve(context.Background(), "  ", "California")
	require.ErrorIs(t, err, core.ErrNotFound)
	require.Zero(t, scrape.callCount())
}

func TestResolveCancelled(t *testing.T) {
	scrape := &stubStrategy{name: "scrape", result: &core.CrawlResult{URL: "https://www.car.org/forms/RPA.pdf"}}
	resolver := newTestResolver(t, scrape)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := resolver.Resolve(ctx, "RPA", "California")
	require.Nil(t, result)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, scrape.callCount())
}

func TestResolveCancelledKeepsBudget(t *testing.T) {
	scrape := &stubStrategy{name: "scrape", result: &core.CrawlResult{URL: "https://www.car.org/forms/RPA.pdf"}}
	resolver := newTestResolver(t, scrape)
	before := resolver.Limiter.Snapshot()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, "RPA", "California")
	require.ErrorIs(t, err, context.Canceled)

	after := resolver.Limiter.Snapshot()
	require.Len(t, after, len(before))
	for i := range before {
		require.Equal(t, before[i].Organization, after[i].Organization)
		require.InDelta(t, before[i].Tokens, after[i].Tokens, 1e-9, before[i].Organization)
	}
}

func TestResolveUsesCache(t *testing.T) {
	scrape := &stubStrategy{name: "scrape", result: &core.CrawlResult{URL: "https://www.car.org/forms/RPA.pdf"}}
	resolver := newTestResolver(t, scrape)
	resolver.Cache = &memoryCache{}
	resolver.UseCache = true
	resolver.CacheTTL = time.Hour

	first, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.NoError(t, err)
	require.False(t, first.Provenance.FromCache)

	second, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.NoError(t, err)
	require.True(t, second.Provenance.FromCache)
	require.Equal(t, first.URL, second.URL)
	require.Equal(t, 1, scrape.callCount())
}

func TestResolveBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	scrape := &stubStrategy{name: "scrape", result: &core.CrawlResult{URL: "https://forms.example.com/doc.pdf"}}
	resolver := newTestResolver(t, scrape)
	resolver.Workers = 2

	requests := []core.FormRequest{
		{FormName: "RPA", Jurisdiction: "California"},
		{FormName: "SPDS", Jurisdiction: "Arizona"},
		{FormName: "Purchase", Jurisdiction: "Nevada"},
		{FormName: "Residential Contract", Jurisdiction: "Florida"},
		{FormName: "Lease", Jurisdiction: "Texas"},
	}

	batch, err := resolver.ResolveBatch(context.Background(), requests)
	require.NoError(t, err)
	require.Equal(t, 5, batch.Total)
	require.Equal(t, 4, batch.Resolved)
	require.Len(t, batch.Items, 5)

	for i, item := range batch.Items {
		require.Equal(t, requests[i], item.Request)
	}
	require.Nil(t, batch.Items[2].Result)
	require.NotNil(t, batch.Items[2].Error)
	require.Equal(t, core.KindSourceNotFound, batch.Items[2].Error.Kind)
	require.Equal(t, "SPDS", batch.Items[1].Result.FormName)
	require.Equal(t, 4, scrape.callCount())
}

func TestResolveBatchCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	resolver := newTestResolver(t, &stubStrategy{name: "scrape"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := resolver.ResolveBatch(ctx, []core.FormRequest{{FormName: "RPA", Jurisdiction: "California"}})
	require.Nil(t, batch)
	require.ErrorIs(t, err, context.Canceled)
}

type countingTransport struct {
	requests atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.requests.Add(1)
	return http.DefaultTransport.RoundTrip(req)
}

func crawlerResolver(t *testing.T, baseURL string, transport http.RoundTripper) *Resolver {
	t.Helper()
	registry, err := core.NewRegistry(core.FormSource{
		Organization:       "California Association of REALTORS®",
		BaseURL:            baseURL,
		SearchEndpoint:     "/legal/standard-forms/search",
		FormPatterns:       []string{"RPA"},
		VersionPattern:     regexp.MustCompile(`(\d+\.\d+\.\d+)|(\d{2}\/\d{2}\/\d{4})`),
		RateLimitPerMinute: 30,
	})
	require.NoError(t, err)

	fetcher := crawler.NewFetcher("formscout/test (+forms lookup)", 2*time.Second, crawler.DefaultMaxRedirects)
	if transport != nil {
		fetcher.Client.Transport = transport
	}
	return &Resolver{
		Registry: registry,
		Limiter:  NewRateLimiter(registry.Sources()),
		Strategies: []Strategy{
			&crawler.APIStrategy{Fetcher: fetcher},
			&crawler.ScrapeStrategy{Fetcher: fetcher},
		},
		Validator: &crawler.URLValidator{Fetcher: fetcher},
		Versions:  &crawler.VersionExtractor{Fetcher: fetcher},
	}
}

func TestResolveAgainstLiveSite(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/legal/standard-forms/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/forms/RPA.pdf">RPA - Residential Purchase Agreement</a></body></html>`))
	})
	mux.HandleFunc("/forms/RPA.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("RPA Rev. 12/23"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := crawlerResolver(t, server.URL, nil)
	result, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.NoError(t, err)
	require.Equal(t, server.URL+"/forms/RPA.pdf", result.URL)
	require.Equal(t, "12/23", result.Version)
	require.Equal(t, core.StrategyScrape, result.Strategy)
	require.True(t, result.IsValid)
}

func TestResolveStaleLinkAgainstLiveSite(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/legal/standard-forms/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<a href="/forms/RPA.pdf">RPA</a>`))
	})
	mux.HandleFunc("/forms/RPA.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := crawlerResolver(t, server.URL, nil)
	_, err := resolver.Resolve(context.Background(), "RPA", "California")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestResolveUnknownJurisdictionSendsNoRequests(t *testing.T) {
	transport := &countingTransport{}
	resolver := crawlerResolver(t, "https://www.car.org", transport)

	_, err := resolver.Resolve(context.Background(), "RPA", "Nevada")
	require.ErrorIs(t, err, core.ErrSourceNotFound)
	require.Zero(t, transport.requests.Load())
}
