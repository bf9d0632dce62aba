package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/formscout/formscout/internal/core"
)

func statusLabel(item core.BatchItem) string {
	switch {
	case item.Result != nil && item.Result.IsValid:
		return "found"
	case item.Error != nil:
		return strings.ReplaceAll(string(item.Error.Kind), "_", " ")
	default:
		return "unknown"
	}
}

func formatNotes(result *core.CrawlResult) string {
	if result == nil {
		return ""
	}
	var notes []string
	if result.Version != "" {
		notes = append(notes, "version "+result.Version)
	}
	if result.Strategy != "" {
		notes = append(notes, "via "+string(result.Strategy))
	}
	if result.Provenance.FromCache {
		note := "cached"
		if expires := result.Provenance.CacheExpiresAt; expires != nil {
			note += " until " + expires.UTC().Format(time.RFC3339)
		}
		notes = append(notes, note)
	}
	return strings.Join(notes, "; ")
}

func errorNotes(err *core.LookupError) string {
	if err == nil {
		return ""
	}
	if err.Kind == core.KindRateLimited && err.RetryAfter > 0 {
		return fmt.Sprintf("retry in %s", err.RetryAfter.Round(time.Second))
	}
	if err.Organization != "" {
		return err.Organization
	}
	return ""
}

func itemNotes(item core.BatchItem) string {
	if item.Result != nil {
		return formatNotes(item.Result)
	}
	return errorNotes(item.Error)
}

func itemURL(item core.BatchItem) string {
	if item.Result == nil {
		return ""
	}
	return item.Result.URL
}

func itemSource(item core.BatchItem) string {
	switch {
	case item.Result != nil:
		return item.Result.Source
	case item.Error != nil:
		return item.Error.Organization
	}
	return ""
}

func sourceMode(source core.FormSource) string {
	if source.HasAPIKey() {
		return "api+scrape"
	}
	return "scrape"
}

func batchSummary(result *core.BatchResult) string {
	return fmt.Sprintf("%d/%d resolved", result.Resolved, result.Total)
}
