package core

import (
	"regexp"
	"time"
)

// DefaultRateLimitPerMinute applies to sources that do not declare a budget.
const DefaultRateLimitPerMinute = 30

// FormSource describes an organization that publishes real-estate forms.
type FormSource struct {
	Organization       string         `json:"organization" yaml:"organization"`
	BaseURL            string         `json:"base_url" yaml:"base_url"`
	SearchEndpoint     string         `json:"search_endpoint,omitempty" yaml:"search_endpoint"`
	FormPatterns       []string       `json:"form_patterns,omitempty" yaml:"form_patterns"`
	VersionPattern     *regexp.Regexp `json:"-" yaml:"-"`
	APIKey             string         `json:"-" yaml:"-"`
	RateLimitPerMinute int            `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// HasAPIKey reports whether direct API search is possible for the source.
func (s FormSource) HasAPIKey() bool {
	return s.APIKey != ""
}

// SearchURL returns the page scanned for form links.
func (s FormSource) SearchURL() string {
	return s.BaseURL + s.SearchEndpoint
}

// Strategy identifies which resolution path produced a result.
type Strategy string

const (
	StrategyAPI      Strategy = "api"
	StrategyScrape   Strategy = "scrape"
	StrategyProvider Strategy = "provider"
)

// CrawlResult is a resolved document URL for a requested form.
type CrawlResult struct {
	FormName   string     `json:"form_name"`
	URL        string     `json:"url"`
	Source     string     `json:"source"`
	Version    string     `json:"version,omitempty"`
	Strategy   Strategy   `json:"strategy,omitempty"`
	IsValid    bool       `json:"is_valid"`
	Provenance Provenance `json:"provenance"`
}

// Provenance captures metadata about how a lookup was resolved.
type Provenance struct {
	LookupID       string     `json:"lookup_id"`
	RequestedAt    time.Time  `json:"requested_at"`
	ResolvedAt     time.Time  `json:"resolved_at"`
	Provider       string     `json:"provider,omitempty"`
	FromCache      bool       `json:"from_cache"`
	CacheExpiresAt *time.Time `json:"cache_expires_at,omitempty"`
	ToolVersion    string     `json:"tool_version,omitempty"`
}

// VersionInfo describes the revision of a validated document.
type VersionInfo struct {
	Version     string     `json:"version"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	IsLatest    bool       `json:"is_latest"`
}

// FormRequest is a single (form, jurisdiction) lookup.
type FormRequest struct {
	FormName     string `json:"form"`
	Jurisdiction string `json:"jurisdiction"`
}

// BatchItem pairs a request with its outcome.
type BatchItem struct {
	Request FormRequest  `json:"request"`
	Result  *CrawlResult `json:"result,omitempty"`
	Error   *LookupError `json:"error,omitempty"`
}

// BatchResult captures the outcome of a batch lookup.
type BatchResult struct {
	Items       []BatchItem `json:"items"`
	Resolved    int         `json:"resolved"`
	Total       int         `json:"total"`
	CompletedAt time.Time   `json:"completed_at"`
}
