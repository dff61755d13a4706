package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"stockdesk/internal/apperr"
	"stockdesk/internal/provider"
)

// errorBody is the error payload every endpoint returns.
type errorBody struct {
	StatusCode    int           `json:"statusCode"`
	StatusMessage string        `json:"statusMessage"`
	Kind          apperr.Kind   `json:"kind,omitempty"`
	Retryable     bool          `json:"retryable,omitempty"`
	Funds         *apperr.Funds `json:"funds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError maps err to its status. Provider errors without a kind are
// reported as provider errors.
func writeError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		var pe *provider.Error
		if errors.As(err, &pe) || errors.Is(err, provider.ErrNoData) {
			ae = apperr.Wrap(apperr.ProviderError, err.Error(), nil)
		} else {
			ae = apperr.Wrap(apperr.KindOf(err), err.Error(), nil)
		}
	}
	status := apperr.Status(ae.Kind)
	writeJSON(w, status, errorBody{
		StatusCode:    status,
		StatusMessage: ae.Message,
		Kind:          ae.Kind,
		Retryable:     ae.Retryable(),
		Funds:         ae.Funds,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, apperr.New(apperr.BadRequest, msg))
}
