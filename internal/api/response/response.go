// Package response writes JSON bodies and the service's error envelope.
package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"terralens/internal/schema"
)

// MaxBodyBytes bounds request bodies; satellite images travel inline.
const MaxBodyBytes = 16 << 20

// ErrorBody is the envelope of every error response.
type ErrorBody struct {
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a generic message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// Invalid writes a 400 carrying the field errors of err when it is a
// schema.ValidationError.
func Invalid(w http.ResponseWriter, message string, err error) {
	body := ErrorBody{Error: message}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	JSON(w, http.StatusBadRequest, body)
}

// ReadBody reads a bounded request body.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer body.Close()
	return io.ReadAll(body)
}
