package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	StatusCode    int          `json:"statusCode"`
	Timestamp     string       `json:"timestamp"`
	Path          string       `json:"path"`
	Method        string       `json:"method"`
	CorrelationID string       `json:"correlationId"`
	Message       string       `json:"message"`
	Errors        []FieldError `json:"errors,omitempty"`
}

// WriteError writes the error envelope with the given status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string, fields ...FieldError) {
	cid := CorrelationIDFromContext(r.Context())
	if cid == "" {
		cid = "N/A"
	}
	WriteJSON(w, r, status, ErrorBody{
		StatusCode:    status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Path:          r.URL.RequestURI(),
		Method:        r.Method,
		CorrelationID: cid,
		Message:       message,
		Errors:        fields,
	})
}

// WriteJSON encodes v as the response body. v is marshalled before the
// status is sent, so a value that cannot be encoded yields a 500 envelope
// instead of an empty response.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		zctx.From(r.Context()).Error("Encode response",
			zap.Int("status", status),
			zap.Error(err),
		)
		if _, isEnvelope := v.(ErrorBody); isEnvelope {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		WriteError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		zctx.From(r.Context()).Debug("Write response", zap.Error(err))
	}
}
