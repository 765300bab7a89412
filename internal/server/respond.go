package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/taxpoint/internal/apperr"
)

type errorBody struct {
	Code   string   `json:"code"`
	Detail string   `json:"detail"`
	Fields []string `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

// writeError maps an error kind to a status and a stable error code.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	body := errorBody{
		Code:   kind.String(),
		Detail: apperr.DetailOf(err),
		Fields: apperr.FieldsOf(err),
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
		body.Detail = "internal server error"
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindParse, apperr.KindOutsideCoverage:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound, apperr.KindRateNotFound:
		return http.StatusNotFound
	case apperr.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
