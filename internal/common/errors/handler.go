package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorHandler turns errors into proxy JSON responses.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// ErrorResponse is the failure body returned to browsers.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

// HandleHTTPError writes err as {error, status?}. Internal details are logged, not returned.
func (h *ErrorHandler) HandleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := Normalize(err)
	h.logError(r, stdErr)

	body := ErrorResponse{Error: stdErr.Message, Status: stdErr.UpstreamStatus}
	WriteJSON(w, stdErr.StatusCode(), body)
}

func (h *ErrorHandler) logError(r *http.Request, stdErr *StandardError) {
	if h.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"errorCode":      string(stdErr.Code),
		"message":        stdErr.Message,
		"details":        stdErr.Details,
		"retryable":      stdErr.Retryable,
		"httpStatus":     stdErr.StatusCode(),
		"upstreamStatus": stdErr.UpstreamStatus,
		"errorCategory":  GetErrorCategory(stdErr.Code),
	}
	if r != nil {
		fields["path"] = r.URL.Path
	}
	h.logger.Error("Request failed", fields)
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
