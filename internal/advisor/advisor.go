// Package advisor asks a generative model which forms a realtor needs.
// Model output is untrusted; it is parsed best-effort and never validated
// against live sources here.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/formscout/formscout/internal/metrics"
)

// Priority ranks how necessary a suggested form is.
type Priority string

const (
	PriorityRequired    Priority = "required"
	PriorityRecommended Priority = "recommended"
	PriorityOptional    Priority = "optional"
)

var priorityRank = map[Priority]int{
	PriorityRequired:    0,
	PriorityRecommended: 1,
	PriorityOptional:    2,
}

func normalizePriority(p Priority) Priority {
	normalized := Priority(strings.ToLower(strings.TrimSpace(string(p))))
	if _, ok := priorityRank[normalized]; ok {
		return normalized
	}
	return PriorityOptional
}

var (
	// ErrDisabled is returned when no generator is configured.
	ErrDisabled = errors.New("forms advisor is not configured")
	// ErrStateRequired is returned for requests without a state.
	ErrStateRequired = errors.New("state is required")
	// ErrFormTypeRequired is returned by FindSpecificForm without a form type.
	ErrFormTypeRequired = errors.New("form type is required")
)

// RealtorInfo describes who is asking.
type RealtorInfo struct {
	State           string   `json:"state"`
	County          string   `json:"county,omitempty"`
	LicenseNumber   string   `json:"licenseNumber,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
}

// FormSuggestion is one form the model proposed.
type FormSuggestion struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	URL          string   `json:"url,omitempty"`
	PDFURL       string   `json:"pdfUrl,omitempty"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	RequiredFor  []string `json:"requiredFor,omitempty"`
	LastUpdated  string   `json:"lastUpdated,omitempty"`
	Priority     Priority `json:"priority"`
}

// GroupedSuggestions splits suggestions by priority.
type GroupedSuggestions struct {
	Required    []FormSuggestion `json:"required"`
	Recommended []FormSuggestion `json:"recommended"`
	Optional    []FormSuggestion `json:"optional"`
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ResponseCache persists raw model answers.
type ResponseCache interface {
	GetAdvisorResponse(ctx context.Context, state, promptKey, model string) (string, bool, error)
	SetAdvisorResponse(ctx context.Context, state, promptKey, model, response string, ttl time.Duration) error
}

// Logger is the logging surface the advisor uses.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Advisor renders prompts, calls the generator and parses its answer.
type Advisor struct {
	Generator Generator
	Prompts   Prompts
	Model     string
	Cache     ResponseCache
	CacheTTL  time.Duration
	Logger    Logger
}

// New returns an advisor with the embedded prompts.
func New(generator Generator, model string) (*Advisor, error) {
	prompts, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	return &Advisor{Generator: generator, Prompts: prompts, Model: model}, nil
}

// Enabled reports whether a generator is wired.
func (a *Advisor) Enabled() bool {
	return a != nil && a.Generator != nil
}

// FindEssentialForms lists the forms a realtor in info.State should keep on
// hand, required first.
func (a *Advisor) FindEssentialForms(ctx context.Context, info RealtorInfo) ([]FormSuggestion, error) {
	info = info.normalized()
	if info.State == "" {
		return nil, ErrStateRequired
	}
	data := PromptData{State: info.State, County: info.County, Specializations: info.Specializations}
	suggestions, err := a.run(ctx, "essential", PromptEssentialForms, data, info.cacheKey(""))
	if err != nil {
		return nil, err
	}
	SortByPriority(suggestions)
	return suggestions, nil
}

// FindSpecificForm looks for one kind of form, e.g. "lead paint disclosure".
func (a *Advisor) FindSpecificForm(ctx context.Context, info RealtorInfo, formType string) ([]FormSuggestion, error) {
	info = info.normalized()
	formType = strings.TrimSpace(formType)
	if info.State == "" {
		return nil, ErrStateRequired
	}
	if formType == "" {
		return nil, ErrFormTypeRequired
	}
	data := PromptData{State: info.State, County: info.County, FormType: formType}
	return a.run(ctx, "specific", PromptSpecificForm, data, info.cacheKey(formType))
}

func (a *Advisor) run(ctx context.Context, op, slug string, data PromptData, cacheKey string) ([]FormSuggestion, error) {
	if !a.Enabled() {
		return nil, ErrDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if text, ok := a.cached(ctx, data.State, slug+"|"+cacheKey); ok {
		metrics.RecordAdvisorRequest(op+"_cached", true, 0)
		return ParseSuggestions(text), nil
	}

	prompt, err := a.Prompts.Get(slug)
	if err != nil {
		return nil, err
	}
	rendered, err := prompt.Render(data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := a.Generator.Generate(ctx, rendered)
	metrics.RecordAdvisorRequest(op, err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("advisor %s: %w", slug, err)
	}

	suggestions := ParseSuggestions(text)
	if len(suggestions) == 0 {
		a.logger().Warn("Advisor response had no usable suggestions",
			zap.String("prompt", slug), zap.String("state", data.State))
		return suggestions, nil
	}

	a.store(ctx, data.State, slug+"|"+cacheKey, suggestions)
	return suggestions, nil
}

func (a *Advisor) cached(ctx context.Context, state, key string) (string, bool) {
	if a.Cache == nil || a.CacheTTL <= 0 {
		return "", false
	}
	text, ok, err := a.Cache.GetAdvisorResponse(ctx, state, key, a.Model)
	if err != nil {
		a.logger().Debug("Advisor cache read failed", zap.Error(err))
		return "", false
	}
	return text, ok
}

func (a *Advisor) store(ctx context.Context, state, key string, suggestions []FormSuggestion) {
	if a.Cache == nil || a.CacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(suggestions)
	if err != nil {
		return
	}
	if err := a.Cache.SetAdvisorResponse(ctx, state, key, a.Model, string(payload), a.CacheTTL); err != nil {
		a.logger().Debug("Advisor cache write failed", zap.Error(err))
	}
}

func (a *Advisor) logger() Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// SortByPriority orders suggestions required, recommended, optional,
// keeping the model's order within each group.
func SortByPriority(suggestions []FormSuggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		return priorityRank[normalizePriority(suggestions[i].Priority)] <
			priorityRank[normalizePriority(suggestions[j].Priority)]
	})
}

// Group splits suggestions by priority. Groups are never nil.
func Group(suggestions []FormSuggestion) GroupedSuggestions {
	grouped := GroupedSuggestions{
		Required:    []FormSuggestion{},
		Recommended: []FormSuggestion{},
		Optional:    []FormSuggestion{},
	}
	for _, s := range suggestions {
		switch normalizePriority(s.Priority) {
		case PriorityRequired:
			grouped.Required = append(grouped.Required, s)
		case PriorityRecommended:
			grouped.Recommended = append(grouped.Recommended, s)
		default:
			grouped.Optional = append(grouped.Optional, s)
		}
	}
	return grouped
}

func (i RealtorInfo) normalized() RealtorInfo {
	i.State = strings.TrimSpace(i.State)
	i.County = strings.TrimSpace(i.County)
	i.LicenseNumber = strings.TrimSpace(i.LicenseNumber)
	specs := make([]string, 0, len(i.Specializations))
	for _, s := range i.Specializations {
		if s = strings.TrimSpace(s); s != "" {
			specs = append(specs, s)
		}
	}
	i.Specializations = specs
	return i
}

// cacheKey covers every input that changes the prompt besides the state.
func (i RealtorInfo) cacheKey(formType string) string {
	specs := append([]string(nil), i.Specializations...)
	for idx := range specs {
		specs[idx] = strings.ToLower(specs[idx])
	}
	sort.Strings(specs)
	return strings.ToLower(i.County) + "|" + strings.Join(specs, ",") + "|" + strings.ToLower(formType)
}
