package core

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Registry is the read-only catalog of form sources.
type Registry struct {
	sources []FormSource
	byOrg   map[string]int
}

// NewRegistry validates sources and builds a registry. Declaration order is
// preserved; it decides which source wins a hint that matches several.
func NewRegistry(sources ...FormSource) (*Registry, error) {
	r := &Registry{
		sources: make([]FormSource, 0, len(sources)),
		byOrg:   make(map[string]int, len(sources)),
	}

	for i, source := range sources {
		source.Organization = strings.TrimSpace(source.Organization)
		source.BaseURL = strings.TrimRight(strings.TrimSpace(source.BaseURL), "/")
		if source.Organization == "" {
			return nil, fmt.Errorf("source %d: organization is required", i)
		}
		if err := validateBaseURL(source.BaseURL); err != nil {
			return nil, fmt.Errorf("source %q: %w", source.Organization, err)
		}
		if _, dup := r.byOrg[source.Organization]; dup {
			return nil, fmt.Errorf("source %q: duplicate organization", source.Organization)
		}
		if endpoint := strings.TrimSpace(source.SearchEndpoint); endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			source.SearchEndpoint = "/" + endpoint
		}
		if source.RateLimitPerMinute <= 0 {
			source.RateLimitPerMinute = DefaultRateLimitPerMinute
		}
		source.FormPatterns = append([]string(nil), source.FormPatterns...)

		r.byOrg[source.Organization] = len(r.sources)
		r.sources = append(r.sources, source)
	}

	return r, nil
}

// FindSourceForState returns the first source whose organization contains
// hint. The match is case-sensitive; an empty hint never matches.
func (r *Registry) FindSourceForState(hint string) (FormSource, bool) {
	if r == nil || hint == "" {
		return FormSource{}, false
	}
	for _, source := range r.sources {
		if strings.Contains(source.Organization, hint) {
			return source, true
		}
	}
	return FormSource{}, false
}

// Source returns the source registered under the exact organization name.
func (r *Registry) Source(organization string) (FormSource, bool) {
	if r == nil {
		return FormSource{}, false
	}
	idx, ok := r.byOrg[organization]
	if !ok {
		return FormSource{}, false
	}
	return r.sources[idx], true
}

// Sources returns the catalog in declaration order.
func (r *Registry) Sources() []FormSource {
	if r == nil {
		return nil
	}
	out := make([]FormSource, len(r.sources))
	copy(out, r.sources)
	return out
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sources)
}

// MergeSources returns base with extra appended; an extra entry whose
// organization already exists replaces the base entry in place.
func MergeSources(base []FormSource, extra ...FormSource) []FormSource {
	merged := append([]FormSource(nil), base...)
	index := make(map[string]int, len(merged))
	for i, source := range merged {
		index[source.Organization] = i
	}
	for _, source := range extra {
		if i, ok := index[source.Organization]; ok {
			merged[i] = source
			continue
		}
		index[source.Organization] = len(merged)
		merged = append(merged, source)
	}
	return merged
}

// ApplyAPIKeys attaches credentials keyed by source slug (see SourceSlug).
func ApplyAPIKeys(sources []FormSource, keys map[string]string) []FormSource {
	out := append([]FormSource(nil), sources...)
	if len(keys) == 0 {
		return out
	}
	normalized := make(map[string]string, len(keys))
	for key, value := range keys {
		if value = strings.TrimSpace(value); value != "" {
			normalized[SourceSlug(key)] = value
		}
	}
	for i := range out {
		if key, ok := normalized[SourceSlug(out[i].Organization)]; ok {
			out[i].APIKey = key
		}
	}
	return out
}

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// SourceSlug converts an organization name into a config-friendly key,
// e.g. "Texas REALTORS®" becomes "texas-realtors".
func SourceSlug(organization string) string {
	slug := slugSeparators.ReplaceAllString(strings.ToLower(organization), "-")
	return strings.Trim(slug, "-")
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base url must be http or https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base url has no host: %s", raw)
	}
	return nil
}
