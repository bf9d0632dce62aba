package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/formscout/formscout/internal/advisor"
	"github.com/formscout/formscout/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(header)
	return t
}

// FormatResult renders one lookup as a two-column table.
func (f *TableFormatter) FormatResult(result *core.CrawlResult) (string, error) {
	if result == nil {
		return "", nil
	}

	t := newTable(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Form", result.FormName})
	t.AppendRow(table.Row{"URL", result.URL})
	t.AppendRow(table.Row{"Source", result.Source})
	if result.Version != "" {
		t.AppendRow(table.Row{"Version", result.Version})
	}
	t.AppendRow(table.Row{"Strategy", string(result.Strategy)})
	if result.Provenance.FromCache {
		t.AppendRow(table.Row{"Cache", "hit"})
	}
	t.AppendRow(table.Row{"Lookup", result.Provenance.LookupID})
	return t.Render(), nil
}

// FormatBatch renders a batch result as a table.
func (f *TableFormatter) FormatBatch(result *core.BatchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	t := newTable(table.Row{"Form", "Jurisdiction", "Status", "Source", "URL", "Notes"})
	for _, item := range result.Items {
		t.AppendRow(table.Row{
			item.Request.FormName,
			item.Request.Jurisdiction,
			statusLabel(item),
			itemSource(item),
			itemURL(item),
			itemNotes(item),
		})
	}
	if result.Total > 0 {
		t.AppendFooter(table.Row{"", "", batchSummary(result), "", "", ""})
	}
	return t.Render(), nil
}

// FormatSources renders the source catalog.
func (f *TableFormatter) FormatSources(sources []core.FormSource) (string, error) {
	t := newTable(table.Row{"Organization", "Base URL", "Search", "Per Min", "Mode"})
	for _, source := range sources {
		t.AppendRow(table.Row{
			source.Organization,
			source.BaseURL,
			source.SearchEndpoint,
			source.RateLimitPerMinute,
			sourceMode(source),
		})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d sources", len(sources)), ""})
	return t.Render(), nil
}

// FormatRateLimits renders limiter state.
func (f *TableFormatter) FormatRateLimits(states []core.RateLimiterState) (string, error) {
	t := newTable(table.Row{"Organization", "Tokens", "Capacity", "Last Refill"})
	for _, state := range states {
		t.AppendRow(table.Row{
			state.Organization,
			fmt.Sprintf("%.2f", state.Tokens),
			state.Capacity,
			state.LastRefill.UTC().Format("15:04:05"),
		})
	}
	return t.Render(), nil
}

// FormatSuggestions renders advisor suggestions, required first.
func (f *TableFormatter) FormatSuggestions(state string, suggestions []advisor.FormSuggestion) (string, error) {
	t := newTable(table.Row{"Priority", "Form", "Jurisdiction", "URL"})
	t.SetTitle(fmt.Sprintf("Suggested forms for %s", state))
	sorted := append([]advisor.FormSuggestion(nil), suggestions...)
	advisor.SortByPriority(sorted)
	for _, s := range sorted {
		url := s.PDFURL
		if url == "" {
			url = s.URL
		}
		t.AppendRow(table.Row{string(s.Priority), s.Name, s.Jurisdiction, url})
	}
	return t.Render(), nil
}
