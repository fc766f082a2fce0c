package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/query"
	"github.com/sells-group/ultradar/internal/validation"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// fail maps err to a status code and writes it.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fe       *validation.FieldError
		conflict *docstore.ConflictError
		storage  *docstore.StorageError
		exec     *query.ExecutionError
		timeout  *query.TimeoutError
	)
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fe.Message, Field: fe.Field})
		return
	case errors.Is(err, docstore.ErrNoObjectKey):
		writeError(w, http.StatusBadRequest, "key required")
		return
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
		return
	case errors.As(err, &storage) && storage.NotFound():
		writeError(w, http.StatusNotFound, "Not found")
		return
	case errors.As(err, &exec), errors.As(err, &timeout):
		zap.L().Error("server: query failed", zap.String("path", r.URL.Path), zap.Error(err))
	default:
		zap.L().Error("server: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// decode reads a JSON body into v. A malformed body is a 400.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return validation.Required("body", "request body must be valid JSON")
	}
	return nil
}
