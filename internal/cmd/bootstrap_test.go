package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formscout/formscout/internal/config"
	"github.com/formscout/formscout/internal/core"
	"github.com/formscout/formscout/internal/core/crawler"
	"github.com/formscout/formscout/internal/core/engine"
)

const oregonCatalog = `sources:
  - organization: Oregon REALTORS
    base_url: https://www.oregonrealtors.org
    search_endpoint: /forms
    form_patterns: [Sale Agreement]
    rate_limit_per_minute: 20
`

func TestBuildRegistryBuiltIn(t *testing.T) {
	registry, err := buildRegistry(config.SourcesConfig{})
	require.NoError(t, err)
	assert.Equal(t, len(core.BuiltInSources()), registry.Len())

	source, ok := registry.FindSourceForState("California")
	require.True(t, ok)
	assert.Contains(t, source.Organization, "California")
}

func TestBuildRegistryCatalogOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(oregonCatalog), 0o600))

	registry, err := buildRegistry(config.SourcesConfig{
		CatalogFile:    path,
		DisableBuiltIn: true,
		APIKeys:        map[string]string{"oregon-realtors": "k-123"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())

	source, ok := registry.FindSourceForState("Oregon")
	require.True(t, ok)
	assert.Equal(t, 20, source.RateLimitPerMinute)
}

func TestBuildRegistryMissingCatalog(t *testing.T) {
	_, err := buildRegistry(config.SourcesConfig{CatalogFile: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestBuildStrategiesOrder(t *testing.T) {
	registry, err := buildRegistry(config.SourcesConfig{})
	require.NoError(t, err)
	fetcher := crawler.NewFetcher("test", time.Second, 3)

	strategies := buildStrategies(registry, fetcher, engine.NewRateLimiter(registry.Sources()))
	require.GreaterOrEqual(t, len(strategies), 3)
	assert.IsType(t, &crawler.APIStrategy{}, strategies[0])
	assert.IsType(t, &crawler.ScrapeStrategy{}, strategies[1])
	for _, strategy := range strategies[2:] {
		assert.IsType(t, &crawler.ProviderStrategy{}, strategy)
	}
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "custom/1.0", userAgent(config.CrawlerConfig{UserAgent: " custom/1.0 "}))

	saved := versionInfo.Version
	t.Cleanup(func() { versionInfo.Version = saved })

	versionInfo.Version = ""
	assert.Equal(t, "formscout/dev (+forms lookup)", userAgent(config.CrawlerConfig{}))
	versionInfo.Version = "0.3.1"
	assert.Equal(t, "formscout/0.3.1 (+forms lookup)", userAgent(config.CrawlerConfig{}))
}

func TestFilterRateLimits(t *testing.T) {
	states := []core.RateLimiterState{
		{Organization: "Texas REALTORS", Capacity: 60},
		{Organization: "Tennessee REALTORS", Capacity: 30},
		{Organization: "Florida REALTORS", Capacity: 30},
	}
	assert.Len(t, filterRateLimits(states, ""), 3)
	assert.Len(t, filterRateLimits(states, " te"), 2)
	assert.Empty(t, filterRateLimits(states, "oregon"))
}
