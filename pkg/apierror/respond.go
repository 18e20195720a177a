package apierror

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the stable JSON error envelope written by all middleware:
// {"success":false,"error":{"code":"...","message":"..."}}.
type ErrorBody struct {
	Success bool      `json:"success"`
	Error   ErrorInfo `json:"error"`
}

// ErrorInfo carries the machine-readable code and client-safe message.
type ErrorInfo struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
}

// Write maps err to its kind, status, and envelope and writes the JSON
// response. The underlying cause is logged, never serialized.
func Write(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := KindOf(err)
	status := kind.HTTPStatus()

	if logger != nil {
		logger.Debug("writing error response",
			"code", string(kind),
			"status", status,
			"error", err,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := ErrorBody{
		Success: false,
		Error:   ErrorInfo{Code: kind, Message: Message(err)},
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil && logger != nil {
		logger.Error("failed to encode error response", "error", encErr)
	}
}
