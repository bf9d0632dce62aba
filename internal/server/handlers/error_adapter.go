package handlers

import (
	"errors"
	"net/http"

	"github.com/formscout/formscout/internal/advisor"
	apperrors "github.com/formscout/formscout/internal/errors"
)

type errorResponder func(http.ResponseWriter, *http.Request, error)

// respond writes every error produced by the form handlers. The server
// swaps in its own responder so router and handler errors share one path.
var respond errorResponder = apperrors.RespondWithError

// SetErrorResponder replaces the responder; nil restores the default.
func SetErrorResponder(fn func(http.ResponseWriter, *http.Request, error)) {
	if fn == nil {
		respond = apperrors.RespondWithError
		return
	}
	respond = fn
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	respond(w, r, err)
}

// respondLookupError maps a resolver failure onto an envelope. Failures
// that carry no lookup identity (timeouts, cancellation) are tagged with
// the requested form and jurisdiction so logs can tie them to a lookup.
func respondLookupError(w http.ResponseWriter, r *http.Request, form, jurisdiction string, err error) {
	envelope := apperrors.FromLookupError(r.Context(), err)
	if envelope == nil {
		envelope = apperrors.NewInternalError("lookup failed")
	}
	if form != "" && envelope.Context["form"] == nil {
		fields := make(map[string]interface{}, len(envelope.Context)+2)
		for key, value := range envelope.Context {
			fields[key] = value
		}
		fields["form"] = form
		if jurisdiction != "" {
			fields["jurisdiction"] = jurisdiction
		}
		if tagged, tagErr := envelope.WithContext(fields); tagErr == nil {
			envelope = tagged
		}
	}
	respondWithError(w, r, envelope)
}

func advisorEnvelope(r *http.Request, err error) error {
	switch {
	case errors.Is(err, advisor.ErrStateRequired), errors.Is(err, advisor.ErrFormTypeRequired):
		return apperrors.NewValidationError(err.Error())
	case errors.Is(err, advisor.ErrDisabled):
		return apperrors.NewServiceUnavailableError(err.Error())
	}
	return apperrors.WrapExternalService(r.Context(), err, "forms advisor request failed")
}
