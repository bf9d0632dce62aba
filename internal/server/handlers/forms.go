package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/formscout/formscout/internal/advisor"
	"github.com/formscout/formscout/internal/core"
	"github.com/formscout/formscout/internal/core/engine"
	apperrors "github.com/formscout/formscout/internal/errors"
)

// DefaultMaxBatch caps the number of lookups accepted in one batch request.
const DefaultMaxBatch = 50

const maxRequestBytes = 1 << 20

// Forms serves the lookup, catalog and advisor endpoints.
type Forms struct {
	Resolver *engine.Resolver
	Advisor  *advisor.Advisor
	MaxBatch int
}

// BatchRequest is the body of POST /v1/forms/resolve/batch.
type BatchRequest struct {
	Requests []core.FormRequest `json:"requests"`
}

// SourcesResponse lists the configured sources.
type SourcesResponse struct {
	Count   int               `json:"count"`
	Sources []core.FormSource `json:"sources"`
}

// RateLimitsResponse reports limiter state per organization.
type RateLimitsResponse struct {
	RateLimits []core.RateLimiterState `json:"rate_limits"`
}

// DiscoverRequest is the body of POST /v1/forms/discover. FormType narrows
// the question to a single kind of form.
type DiscoverRequest struct {
	advisor.RealtorInfo
	FormType string `json:"formType,omitempty"`
}

// DiscoverResponse carries advisor suggestions. Forms is grouped by
// priority for essential-form requests and a flat list for FormType requests.
type DiscoverResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Forms   any    `json:"forms"`
}

// Resolve handles GET /v1/forms/resolve?form=&jurisdiction=.
func (h *Forms) Resolve(w http.ResponseWriter, r *http.Request) {
	form := strings.TrimSpace(r.URL.Query().Get("form"))
	jurisdiction := strings.TrimSpace(r.URL.Query().Get("jurisdiction"))
	if form == "" || jurisdiction == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("form and jurisdiction query parameters are required"))
		return
	}

	result, err := h.Resolver.Resolve(r.Context(), form, jurisdiction)
	if err != nil {
		respondLookupError(w, r, form, jurisdiction, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResolveBatch handles POST /v1/forms/resolve/batch.
func (h *Forms) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	var body BatchRequest
	if err := decodeJSON(r, &body); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be JSON"))
		return
	}
	if len(body.Requests) == 0 {
		respondWithError(w, r, apperrors.NewValidationError("at least one request is required"))
		return
	}
	if max := h.maxBatch(); len(body.Requests) > max {
		respondWithError(w, r, apperrors.NewValidationError(fmt.Sprintf("batch exceeds %d requests", max)))
		return
	}

	result, err := h.Resolver.ResolveBatch(r.Context(), body.Requests)
	if err != nil {
		respondLookupError(w, r, "", "", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Sources handles GET /v1/sources.
func (h *Forms) Sources(w http.ResponseWriter, r *http.Request) {
	sources := h.Resolver.Registry.Sources()
	writeJSON(w, http.StatusOK, SourcesResponse{Count: len(sources), Sources: sources})
}

// RateLimits handles GET /v1/rate-limits.
func (h *Forms) RateLimits(w http.ResponseWriter, r *http.Request) {
	states := h.Resolver.Limiter.Snapshot()
	if states == nil {
		states = []core.RateLimiterState{}
	}
	writeJSON(w, http.StatusOK, RateLimitsResponse{RateLimits: states})
}

// Discover handles POST /v1/forms/discover.
func (h *Forms) Discover(w http.ResponseWriter, r *http.Request) {
	if !h.Advisor.Enabled() {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("forms advisor is not configured"))
		return
	}

	var body DiscoverRequest
	if err := decodeJSON(r, &body); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be JSON"))
		return
	}

	state := strings.TrimSpace(body.State)
	if body.FormType != "" {
		forms, err := h.Advisor.FindSpecificForm(r.Context(), body.RealtorInfo, body.FormType)
		if err != nil {
			respondWithError(w, r, advisorEnvelope(r, err))
			return
		}
		writeJSON(w, http.StatusOK, DiscoverResponse{
			Success: true,
			Message: fmt.Sprintf("Found %d %s forms for %s", len(forms), strings.TrimSpace(body.FormType), state),
			Forms:   forms,
		})
		return
	}

	forms, err := h.Advisor.FindEssentialForms(r.Context(), body.RealtorInfo)
	if err != nil {
		respondWithError(w, r, advisorEnvelope(r, err))
		return
	}
	writeJSON(w, http.StatusOK, DiscoverResponse{
		Success: true,
		Message: fmt.Sprintf("Found %d forms for %s", len(forms), state),
		Forms:   advisor.Group(forms),
	})
}

func (h *Forms) maxBatch() int {
	if h.MaxBatch <= 0 {
		return DefaultMaxBatch
	}
	return h.MaxBatch
}

func decodeJSON(r *http.Request, into any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
