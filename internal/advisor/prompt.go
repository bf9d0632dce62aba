package advisor

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompt slugs shipped with the binary.
const (
	PromptEssentialForms = "essential-forms"
	PromptSpecificForm   = "specific-form"
)

//go:embed prompts/*.md
var defaultPromptsFS embed.FS

// PromptConfig is the YAML frontmatter of a prompt file.
type PromptConfig struct {
	Slug              string   `yaml:"slug"`
	Description       string   `yaml:"description,omitempty"`
	RequiredVariables []string `yaml:"required_variables,omitempty"`
	OptionalVariables []string `yaml:"optional_variables,omitempty"`
}

// Prompt is a parsed prompt template.
type Prompt struct {
	Config   PromptConfig
	Source   string
	template *template.Template
}

var templateFuncs = template.FuncMap{"join": strings.Join}

// ParsePrompt reads a markdown prompt with YAML frontmatter. The body is
// a text/template rendered against PromptData.
func ParsePrompt(source string, data []byte) (*Prompt, error) {
	config, body, err := parseFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}
	if strings.TrimSpace(config.Slug) == "" {
		return nil, fmt.Errorf("prompt %s missing slug", source)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("prompt %s has no body", source)
	}

	tmpl, err := template.New(config.Slug).Funcs(templateFuncs).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s template: %w", source, err)
	}
	return &Prompt{Config: config, Source: source, template: tmpl}, nil
}

// PromptData is the variable set prompts render against.
type PromptData struct {
	State           string
	County          string
	Specializations []string
	FormType        string
}

func (d PromptData) value(name string) string {
	switch name {
	case "State":
		return d.State
	case "County":
		return d.County
	case "FormType":
		return d.FormType
	case "Specializations":
		return strings.Join(d.Specializations, ",")
	}
	return ""
}

// Render fills the template after checking required variables.
func (p *Prompt) Render(data PromptData) (string, error) {
	if p == nil || p.template == nil {
		return "", fmt.Errorf("prompt not loaded")
	}
	for _, name := range p.Config.RequiredVariables {
		if strings.TrimSpace(data.value(name)) == "" {
			return "", fmt.Errorf("prompt %s requires %s", p.Config.Slug, name)
		}
	}
	var buf bytes.Buffer
	if err := p.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", p.Config.Slug, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Prompts indexes prompts by slug.
type Prompts map[string]*Prompt

// DefaultPrompts loads the embedded prompt set.
func DefaultPrompts() (Prompts, error) {
	entries, err := defaultPromptsFS.ReadDir("prompts")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	prompts := make(Prompts, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := defaultPromptsFS.ReadFile("prompts/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded prompt %s: %w", entry.Name(), err)
		}
		prompt, err := ParsePrompt(entry.Name(), data)
		if err != nil {
			return nil, err
		}
		if _, dup := prompts[prompt.Config.Slug]; dup {
			return nil, fmt.Errorf("duplicate prompt slug: %s", prompt.Config.Slug)
		}
		prompts[prompt.Config.Slug] = prompt
	}
	return prompts, nil
}

// Get returns the prompt for slug.
func (p Prompts) Get(slug string) (*Prompt, error) {
	prompt, ok := p[strings.TrimSpace(slug)]
	if !ok {
		return nil, fmt.Errorf("prompt %q not found", slug)
	}
	return prompt, nil
}

// Slugs lists prompt slugs in order.
func (p Prompts) Slugs() []string {
	slugs := make([]string, 0, len(p))
	for slug := range p {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func parseFrontmatter(data []byte) (PromptConfig, string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return PromptConfig{}, "", fmt.Errorf("empty prompt")
	}

	lines := bufio.NewScanner(bytes.NewReader(trimmed))
	var (
		frontmatter []string
		body        []string
		inFront     bool
		headerSeen  bool
	)
	for lines.Scan() {
		line := lines.Text()
		switch {
		case !headerSeen && strings.TrimSpace(line) == "---":
			headerSeen = true
			inFront = true
		case headerSeen && inFront && strings.TrimSpace(line) == "---":
			inFront = false
		case inFront:
			frontmatter = append(frontmatter, line)
		default:
			body = append(body, line)
		}
	}
	if err := lines.Err(); err != nil {
		return PromptConfig{}, "", err
	}
	if !headerSeen {
		return PromptConfig{}, "", fmt.Errorf("missing frontmatter")
	}

	var cfg PromptConfig
	if err := yaml.Unmarshal([]byte(strings.Join(frontmatter, "\n")), &cfg); err != nil {
		return PromptConfig{}, "", fmt.Errorf("invalid frontmatter: %w", err)
	}
	return cfg, strings.Join(body, "\n"), nil
}
