package core

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape of an operator-supplied source catalog.
//
//	sources:
//	  - organization: Oregon REALTORS®
//	    base_url: https://www.oregonrealtors.org
//	    search_endpoint: /forms
//	    form_patterns: [Sale Agreement]
//	    version_pattern: 'Rev\.\s*(\d{2}/\d{2})'
//	    rate_limit_per_minute: 20
type catalogFile struct {
	Sources []catalogEntry `yaml:"sources"`
}

type catalogEntry struct {
	Organization       string   `yaml:"organization"`
	BaseURL            string   `yaml:"base_url"`
	SearchEndpoint     string   `yaml:"search_endpoint"`
	FormPatterns       []string `yaml:"form_patterns"`
	VersionPattern     string   `yaml:"version_pattern"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
}

// LoadCatalog decodes a YAML source catalog.
func LoadCatalog(r io.Reader) ([]FormSource, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode source catalog: %w", err)
	}

	sources := make([]FormSource, 0, len(file.Sources))
	for i, entry := range file.Sources {
		source := FormSource{
			Organization:       strings.TrimSpace(entry.Organization),
			BaseURL:            strings.TrimSpace(entry.BaseURL),
			SearchEndpoint:     strings.TrimSpace(entry.SearchEndpoint),
			FormPatterns:       entry.FormPatterns,
			RateLimitPerMinute: entry.RateLimitPerMinute,
		}
		if pattern := strings.TrimSpace(entry.VersionPattern); pattern != "" {
			compiled, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("source catalog entry %d (%s): invalid version_pattern: %w", i, source.Organization, err)
			}
			source.VersionPattern = compiled
		}
		sources = append(sources, source)
	}

	return sources, nil
}

// LoadCatalogFile reads a YAML source catalog from disk.
func LoadCatalogFile(path string) ([]FormSource, error) {
	// #nosec G304 -- catalog path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source catalog: %w", err)
	}
	return LoadCatalog(bytes.NewReader(data))
}
