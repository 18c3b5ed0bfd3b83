package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-shop-settlement/internal/apperr"
	"github.com/rs/zerolog/hlog"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Success bool        `json:"success"`
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
	Fields  []string    `json:"fields,omitempty"`
}

// writeError maps an error kind to its status. Internal details stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	body := errorBody{Kind: kind, Fields: apperr.FieldsOf(err)}

	var ae *apperr.Error
	switch {
	case kind == apperr.KindInternal:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		body.Message = "internal error"
	case errors.As(err, &ae):
		body.Message = ae.Message
		if kind == apperr.KindPaymentUnavailable {
			hlog.FromRequest(r).Warn().Err(err).Msg("payment provider unavailable")
		}
	default:
		body.Message = err.Error()
	}
	writeJSON(w, apperr.HTTPStatus(kind), body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return apperr.Validationf("invalid json body")
	}
	return nil
}
