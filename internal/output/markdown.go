package output

import (
	"fmt"
	"strings"

	"github.com/formscout/formscout/internal/advisor"
	"github.com/formscout/formscout/internal/core"
)

// MarkdownFormatter renders results as markdown.
type MarkdownFormatter struct{}

// FormatResult renders one lookup as a markdown list.
func (f *MarkdownFormatter) FormatResult(result *core.CrawlResult) (string, error) {
	if result == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(result.FormName)))
	sb.WriteString(fmt.Sprintf("- **URL**: <%s>\n", result.URL))
	sb.WriteString(fmt.Sprintf("- **Source**: %s\n", result.Source))
	if result.Version != "" {
		sb.WriteString(fmt.Sprintf("- **Version**: %s\n", result.Version))
	}
	if notes := formatNotes(result); notes != "" {
		sb.WriteString(fmt.Sprintf("- **Notes**: %s\n", notes))
	}
	return sb.String(), nil
}

// FormatBatch renders a batch result as a markdown table.
func (f *MarkdownFormatter) FormatBatch(result *core.BatchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("## Form lookups\n\n")
	sb.WriteString("| Form | Jurisdiction | Status | URL | Notes |\n")
	sb.WriteString("|------|--------------|--------|-----|-------|\n")
	for _, item := range result.Items {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(item.Request.FormName),
			escapeMarkdownCell(item.Request.Jurisdiction),
			escapeMarkdownCell(statusLabel(item)),
			escapeMarkdownCell(itemURL(item)),
			escapeMarkdownCell(itemNotes(item)),
		))
	}
	if result.Total > 0 {
		sb.WriteString(fmt.Sprintf("\n**Resolved**: %s\n", batchSummary(result)))
	}
	return sb.String(), nil
}

// FormatSources renders the catalog as a markdown table.
func (f *MarkdownFormatter) FormatSources(sources []core.FormSource) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Organization | Base URL | Per Min | Mode |\n")
	sb.WriteString("|--------------|----------|---------|------|\n")
	for _, source := range sources {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n",
			escapeMarkdownCell(source.Organization),
			escapeMarkdownCell(source.BaseURL),
			source.RateLimitPerMinute,
			sourceMode(source),
		))
	}
	return sb.String(), nil
}

// FormatRateLimits renders limiter state as a markdown table.
func (f *MarkdownFormatter) FormatRateLimits(states []core.RateLimiterState) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Organization | Tokens | Capacity |\n")
	sb.WriteString("|--------------|--------|----------|\n")
	for _, state := range states {
		sb.WriteString(fmt.Sprintf("| %s | %.2f | %d |\n",
			escapeMarkdownCell(state.Organization), state.Tokens, state.Capacity))
	}
	return sb.String(), nil
}

// FormatSuggestions renders advisor output as one section per priority.
func (f *MarkdownFormatter) FormatSuggestions(state string, suggestions []advisor.FormSuggestion) (string, error) {
	grouped := advisor.Group(suggestions)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Suggested forms for %s\n", escapeMarkdownCell(state)))
	writeGroup := func(title string, items []advisor.FormSuggestion) {
		if len(items) == 0 {
			return
		}
		sb.WriteString(fmt.Sprintf("\n### %s\n\n", title))
		for _, s := range items {
			line := "- " + s.Name
			if s.URL != "" {
				line += fmt.Sprintf(" (<%s>)", s.URL)
			}
			if s.Description != "" {
				line += ": " + s.Description
			}
			sb.WriteString(line + "\n")
		}
	}
	writeGroup("Required", grouped.Required)
	writeGroup("Recommended", grouped.Recommended)
	writeGroup("Optional", grouped.Optional)
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
