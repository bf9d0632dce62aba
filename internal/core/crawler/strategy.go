package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/formscout/formscout/internal/core"
)

const searchAPIPath = "/api/forms/search"

// apiSearchResponse is the JSON body returned by an organization search API.
type apiSearchResponse struct {
	URL     string `json:"url"`
	Version string `json:"version"`
}

// APIStrategy queries an organization's JSON search API. It only applies to
// sources with an API key.
type APIStrategy struct {
	Fetcher *Fetcher
}

func (s *APIStrategy) Name() string { return string(core.StrategyAPI) }

func (s *APIStrategy) Attempt(ctx context.Context, source core.FormSource, formName string) (*core.CrawlResult, error) {
	if !source.HasAPIKey() {
		return nil, nil
	}
	hit, err := searchAPI(ctx, s.Fetcher, source, formName)
	if err != nil || hit == nil {
		return nil, err
	}
	return &core.CrawlResult{
		FormName: formName,
		URL:      hit.URL,
		Source:   source.Organization,
		Version:  strings.TrimSpace(hit.Version),
		Strategy: core.StrategyAPI,
	}, nil
}

func searchAPI(ctx context.Context, fetcher *Fetcher, source core.FormSource, formName string) (*apiSearchResponse, error) {
	query := url.Values{}
	query.Set("q", formName)
	query.Set("apiKey", source.APIKey)
	target := source.BaseURL + searchAPIPath + "?" + query.Encode()

	resp, err := fetcher.Get(ctx, target, "application/json")
	if err != nil {
		// The query string carries the API key; keep it out of errors.
		return nil, fmt.Errorf("%s search api: %w", source.Organization, redact(err, target, source.BaseURL+searchAPIPath))
	}

	var hit apiSearchResponse
	if err := json.NewDecoder(bytes.NewReader(resp.Body)).Decode(&hit); err != nil {
		return nil, fmt.Errorf("%s search api: decode response: %w", source.Organization, err)
	}
	hit.URL = strings.TrimSpace(hit.URL)
	if hit.URL == "" {
		return nil, nil
	}
	resolved, ok := ResolveHref(source.BaseURL, hit.URL)
	if !ok {
		return nil, fmt.Errorf("%s search api: unusable url %q", source.Organization, hit.URL)
	}
	hit.URL = resolved
	return &hit, nil
}

// ScrapeStrategy fetches the organization's search page and follows the
// first link whose text mentions the form.
type ScrapeStrategy struct {
	Fetcher *Fetcher
	Parser  DocumentParser
}

func (s *ScrapeStrategy) Name() string { return string(core.StrategyScrape) }

func (s *ScrapeStrategy) Attempt(ctx context.Context, source core.FormSource, formName string) (*core.CrawlResult, error) {
	link, err := scrapeLink(ctx, s.Fetcher, s.Parser, source, formName)
	if err != nil || link == "" {
		return nil, err
	}
	return &core.CrawlResult{
		FormName: formName,
		URL:      link,
		Source:   source.Organization,
		Strategy: core.StrategyScrape,
	}, nil
}

func scrapeLink(ctx context.Context, fetcher *Fetcher, parser DocumentParser, source core.FormSource, formName string) (string, error) {
	resp, err := fetcher.Get(ctx, source.SearchURL(), "text/html")
	if err != nil {
		return "", fmt.Errorf("%s search page: %w", source.Organization, err)
	}
	if parser == nil {
		parser = ParseHTML
	}
	doc, err := parser(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("%s search page: parse: %w", source.Organization, err)
	}
	link, ok := FindLink(doc, source.BaseURL, formName)
	if !ok {
		return "", nil
	}
	return link, nil
}

// ProviderLimiter gates requests to a provider.
type ProviderLimiter interface {
	TryAcquire(organization string) bool
}

// ProviderStrategy searches a third-party forms provider (ZipLogix, DotLoop)
// for a form the jurisdiction's own site did not yield. It uses the
// provider's API when a key is configured and its catalog page otherwise.
type ProviderStrategy struct {
	Provider core.FormSource
	Fetcher  *Fetcher
	Parser   DocumentParser
	// Limiter, when set, spends one of the provider's own tokens per attempt.
	Limiter ProviderLimiter
}

func (s *ProviderStrategy) Name() string {
	return string(core.StrategyProvider) + ":" + core.SourceSlug(s.Provider.Organization)
}

func (s *ProviderStrategy) Attempt(ctx context.Context, source core.FormSource, formName string) (*core.CrawlResult, error) {
	if source.Organization == s.Provider.Organization {
		return nil, nil
	}
	if s.Limiter != nil && !s.Limiter.TryAcquire(s.Provider.Organization) {
		return nil, fmt.Errorf("%s: provider budget exhausted", s.Provider.Organization)
	}

	result := &core.CrawlResult{
		FormName: formName,
		Source:   s.Provider.Organization,
		Strategy: core.StrategyProvider,
	}

	if s.Provider.HasAPIKey() {
		hit, err := searchAPI(ctx, s.Fetcher, s.Provider, formName)
		if err != nil {
			return nil, err
		}
		if hit == nil {
			return nil, nil
		}
		result.URL = hit.URL
		result.Version = strings.TrimSpace(hit.Version)
		return result, nil
	}

	link, err := scrapeLink(ctx, s.Fetcher, s.Parser, s.Provider, formName)
	if err != nil || link == "" {
		return nil, err
	}
	result.URL = link
	return result, nil
}

// ProviderStrategies builds one ProviderStrategy per provider present in the
// registry, in core.ProviderOrder.
func ProviderStrategies(registry *core.Registry, fetcher *Fetcher, limiter ProviderLimiter) []*ProviderStrategy {
	var strategies []*ProviderStrategy
	for _, org := range core.ProviderOrder {
		provider, ok := registry.Source(org)
		if !ok {
			continue
		}
		strategies = append(strategies, &ProviderStrategy{
			Provider: provider,
			Fetcher:  fetcher,
			Limiter:  limiter,
		})
	}
	return strategies
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string, replacement string) error {
	if err == nil || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, replacement), err: err}
}
