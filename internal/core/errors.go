package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// LookupErrorKind classifies why a lookup produced no result.
type LookupErrorKind string

const (
	// KindSourceNotFound means no configured organization matched the hint.
	KindSourceNotFound LookupErrorKind = "source_not_found"
	// KindRateLimited means the organization's budget is exhausted; retry later.
	KindRateLimited LookupErrorKind = "rate_limited"
	// KindNotFound means every strategy was tried and nothing valid was found.
	KindNotFound LookupErrorKind = "not_found"
)

// Sentinels for errors.Is.
var (
	ErrSourceNotFound = errors.New("no form source for jurisdiction")
	ErrRateLimited    = errors.New("form source rate limit exceeded")
	ErrNotFound       = errors.New("form not found")
)

// LookupError is the only error type returned by the resolver besides
// context cancellation. In JSON the retry wait is whole seconds under
// retry_after_seconds, matching the HTTP error envelope.
type LookupError struct {
	Kind         LookupErrorKind `json:"kind"`
	Form         string          `json:"form,omitempty"`
	Jurisdiction string          `json:"jurisdiction,omitempty"`
	Organization string          `json:"organization,omitempty"`
	RetryAfter   time.Duration   `json:"-"`
}

type lookupErrorJSON struct {
	Kind              LookupErrorKind `json:"kind"`
	Form              string          `json:"form,omitempty"`
	Jurisdiction      string          `json:"jurisdiction,omitempty"`
	Organization      string          `json:"organization,omitempty"`
	RetryAfterSeconds int             `json:"retry_after_seconds,omitempty"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds. It is 0 when no
// wait is known.
func (e *LookupError) RetryAfterSeconds() int {
	if e == nil || e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

func (e LookupError) MarshalJSON() ([]byte, error) {
	return json.Marshal(lookupErrorJSON{
		Kind:              e.Kind,
		Form:              e.Form,
		Jurisdiction:      e.Jurisdiction,
		Organization:      e.Organization,
		RetryAfterSeconds: e.RetryAfterSeconds(),
	})
}

func (e *LookupError) UnmarshalJSON(data []byte) error {
	var raw lookupErrorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = LookupError{
		Kind:         raw.Kind,
		Form:         raw.Form,
		Jurisdiction: raw.Jurisdiction,
		Organization: raw.Organization,
		RetryAfter:   time.Duration(raw.RetryAfterSeconds) * time.Second,
	}
	return nil
}

func (e *LookupError) Error() string {
	if e == nil {
		return "lookup error"
	}
	switch e.Kind {
	case KindSourceNotFound:
		return fmt.Sprintf("%s: %q", ErrSourceNotFound, e.Jurisdiction)
	case KindRateLimited:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("%s: %s (retry in %s)", ErrRateLimited, e.Organization, e.RetryAfter.Round(time.Second))
		}
		return fmt.Sprintf("%s: %s", ErrRateLimited, e.Organization)
	default:
		return fmt.Sprintf("%s: %q (%s)", ErrNotFound, e.Form, e.Organization)
	}
}

// Is matches the kind-specific sentinel.
func (e *LookupError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindSourceNotFound:
		return target == ErrSourceNotFound
	case KindRateLimited:
		return target == ErrRateLimited
	case KindNotFound:
		return target == ErrNotFound
	}
	return false
}

// AsLookupError extracts a LookupError from err.
func AsLookupError(err error) (*LookupError, bool) {
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) && lookupErr != nil {
		return lookupErr, true
	}
	return nil, false
}
