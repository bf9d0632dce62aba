package crawler

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/formscout/formscout/internal/core"
)

// revisionPattern catches the "Rev. MM/YY" stamp most association forms
// carry when the source has no pattern of its own or its pattern misses.
var revisionPattern = regexp.MustCompile(`(?i)\brev(?:ision|\.)?\s*(\d{1,2}/\d{2}(?:/\d{2,4})?)`)

// URLValidator confirms a candidate document URL is live.
type URLValidator struct {
	Fetcher *Fetcher
}

// Validate issues a HEAD request. Only a final 200 counts as valid;
// redirects are followed up to the fetcher's limit.
func (v *URLValidator) Validate(ctx context.Context, target string) (bool, error) {
	status, err := v.Fetcher.Head(ctx, target)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// VersionExtractor reads a document and pulls out its revision marker.
type VersionExtractor struct {
	Fetcher *Fetcher
	Parser  DocumentParser
}

// Extract fetches target and matches the source's version pattern against
// the document text, then against the URL path. The generic revision stamp
// is tried last. It returns nil when nothing matches.
func (e *VersionExtractor) Extract(ctx context.Context, source core.FormSource, target string) *core.VersionInfo {
	texts := []string{}
	if body := e.documentText(ctx, target); body != "" {
		texts = append(texts, body)
	}
	if path := urlPath(target); path != "" {
		texts = append(texts, path)
	}

	patterns := []*regexp.Regexp{}
	if source.VersionPattern != nil {
		patterns = append(patterns, source.VersionPattern)
	}
	patterns = append(patterns, revisionPattern)

	for _, pattern := range patterns {
		for _, text := range texts {
			if version := MatchVersion(pattern, text); version != "" {
				return &core.VersionInfo{
					Version:     version,
					ReleaseDate: parseRevisionDate(version),
					IsLatest:    true,
				}
			}
		}
	}
	return nil
}

func (e *VersionExtractor) documentText(ctx context.Context, target string) string {
	resp, err := e.Fetcher.Get(ctx, target, "")
	if err != nil {
		return ""
	}
	if !isHTML(resp.ContentType) {
		return string(resp.Body)
	}
	parser := e.Parser
	if parser == nil {
		parser = ParseHTML
	}
	doc, err := parser(bytes.NewReader(resp.Body))
	if err != nil {
		return string(resp.Body)
	}
	return doc.Text()
}

// MatchVersion applies pattern to text and returns the first capture group
// that participated in the match, or the whole match when none did.
func MatchVersion(pattern *regexp.Regexp, text string) string {
	if pattern == nil || text == "" {
		return ""
	}
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	for _, group := range match[1:] {
		if group != "" {
			return strings.TrimSpace(group)
		}
	}
	return strings.TrimSpace(match[0])
}

// urlPath returns the path and query of target; the host is skipped so IP
// addresses are never mistaken for version numbers.
func urlPath(target string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return ""
	}
	path, err := url.PathUnescape(parsed.EscapedPath())
	if err != nil {
		path = parsed.Path
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return path
}

var revisionLayouts = []string{"01/02/2006", "1/2/2006", "01/02/06", "01/06", "1/06"}

func parseRevisionDate(version string) *time.Time {
	for _, layout := range revisionLayouts {
		if t, err := time.Parse(layout, version); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
