package server

import (
	"encoding/json"
	"net/http"
	"time"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
)

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
}

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, payload any) {
	setSecurityHeaders(w)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

type errorResponse struct {
	Error       string   `json:"error"`
	Status      int      `json:"status"`
	Code        string   `json:"code,omitempty"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Remediation []string `json:"remediation,omitempty"`
	Retryable   bool     `json:"retryable,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// respondError sends a structured JSON error response.
func respondError(w http.ResponseWriter, status int, err error) {
	setSecurityHeaders(w)
	w.WriteHeader(status)

	response := errorResponse{
		Error:     http.StatusText(status),
		Status:    status,
		Message:   http.StatusText(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if appErr, ok := bcperrors.As(err); ok {
		response.Code = string(appErr.Code)
		if appErr.UserMessage != "" {
			response.Message = appErr.UserMessage
		} else if appErr.Message != "" {
			response.Message = appErr.Message
		}
		response.Remediation = append([]string(nil), appErr.Remediation...)
		response.Retryable = appErr.Retryable
		response.Details = appErr.Error()
	} else if err != nil {
		response.Message = err.Error()
		response.Details = err.Error()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(response)
}

// internalError gives an unstructured failure the INTERNAL code. Structured
// errors keep their own.
func internalError(err error, message string) error {
	if _, ok := bcperrors.As(err); ok {
		return err
	}
	return bcperrors.Wrap(err, bcperrors.ErrCodeInternal, message)
}
