package web

import (
	"encoding/json"
	"net/http"

	"github.com/roomboard/server/internal/errs"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeCodedError writes a coded error as JSON, mapping its code to an
// HTTP status. Untyped errors come out as an opaque 500.
func writeCodedError(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(errs.CodeOf(err)), ErrorResponse{Error: errs.MessageOf(err)})
}
