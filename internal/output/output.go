package output

import (
	"fmt"
	"strings"

	"github.com/formscout/formscout/internal/advisor"
	"github.com/formscout/formscout/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders lookup results and catalog views.
type Formatter interface {
	FormatResult(result *core.CrawlResult) (string, error)
	FormatBatch(result *core.BatchResult) (string, error)
	FormatSources(sources []core.FormSource) (string, error)
	FormatRateLimits(states []core.RateLimiterState) (string, error)
	FormatSuggestions(state string, suggestions []advisor.FormSuggestion) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}
