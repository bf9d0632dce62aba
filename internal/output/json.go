package output

import (
	"encoding/json"

	"github.com/formscout/formscout/internal/advisor"
	"github.com/formscout/formscout/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatResult renders one lookup as JSON.
func (f *JSONFormatter) FormatResult(result *core.CrawlResult) (string, error) {
	if result == nil {
		return "", nil
	}
	return f.encode(result)
}

// FormatBatch renders a batch result as JSON.
func (f *JSONFormatter) FormatBatch(result *core.BatchResult) (string, error) {
	if result == nil {
		return "", nil
	}
	return f.encode(result)
}

// FormatSources renders the catalog as JSON.
func (f *JSONFormatter) FormatSources(sources []core.FormSource) (string, error) {
	if sources == nil {
		sources = []core.FormSource{}
	}
	return f.encode(sources)
}

// FormatRateLimits renders limiter state as JSON.
func (f *JSONFormatter) FormatRateLimits(states []core.RateLimiterState) (string, error) {
	if states == nil {
		states = []core.RateLimiterState{}
	}
	return f.encode(states)
}

// FormatSuggestions renders advisor output grouped by priority.
func (f *JSONFormatter) FormatSuggestions(state string, suggestions []advisor.FormSuggestion) (string, error) {
	return f.encode(struct {
		State string                     `json:"state"`
		Count int                        `json:"count"`
		Forms advisor.GroupedSuggestions `json:"forms"`
	}{State: state, Count: len(suggestions), Forms: advisor.Group(suggestions)})
}

func (f *JSONFormatter) encode(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
