package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/formscout/formscout/internal/core"
)

// resolveRequests builds lookups from positional form names sharing one
// jurisdiction, or from a requests file.
func resolveRequests(positional []string, jurisdiction, requestsFile string) ([]core.FormRequest, error) {
	jurisdiction = strings.TrimSpace(jurisdiction)
	if trimmed := strings.TrimSpace(requestsFile); trimmed != "" {
		if len(positional) > 0 {
			return nil, fmt.Errorf("cannot combine positional forms with --requests-file")
		}
		return readRequestsFile(trimmed, jurisdiction)
	}

	requests := make([]core.FormRequest, 0, len(positional))
	for _, raw := range positional {
		form := strings.TrimSpace(raw)
		if form == "" {
			continue
		}
		requests = append(requests, core.FormRequest{FormName: form, Jurisdiction: jurisdiction})
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("at least one form name is required")
	}
	if jurisdiction == "" {
		return nil, fmt.Errorf("--jurisdiction is required")
	}
	return requests, nil
}

// readRequestsFile reads one lookup per line as "form" or "form,jurisdiction".
// Blank lines and # comments are skipped. Lines without a jurisdiction use
// fallback.
func readRequestsFile(path, fallback string) ([]core.FormRequest, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck
		reader = file
	}
	return parseRequests(reader, fallback)
}

func parseRequests(reader io.Reader, fallback string) ([]core.FormRequest, error) {
	requests := make([]core.FormRequest, 0)
	scanner := bufio.NewScanner(reader)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		form, jurisdiction := raw, fallback
		if idx := strings.LastIndex(raw, ","); idx >= 0 {
			form = strings.TrimSpace(raw[:idx])
			jurisdiction = strings.TrimSpace(raw[idx+1:])
		}
		if form == "" {
			return nil, fmt.Errorf("missing form name on line %d", line)
		}
		if jurisdiction == "" {
			return nil, fmt.Errorf("missing jurisdiction on line %d", line)
		}
		requests = append(requests, core.FormRequest{FormName: form, Jurisdiction: jurisdiction})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(requests) == 0 {
		return nil, fmt.Errorf("no requests found")
	}
	return requests, nil
}
