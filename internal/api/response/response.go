// Package response writes the API envelope.
package response

import (
	"encoding/json"
	"net/http"

	"talento-local/internal/common/errors"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorData describes a domain error to the caller.
type ErrorData struct {
	Code     errors.ErrorCode       `json:"code"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

const internalMessage = "internal server error"

func JSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Envelope{Success: true, Data: data})
}

// Error writes err with its mapped status. Technical errors become a generic
// 500 that carries nothing from the underlying error.
func Error(w http.ResponseWriter, err error) {
	stdErr := errors.Normalize(err)
	status := errors.HTTPStatus(stdErr.Code)

	if !errors.IsDomainError(stdErr.Code) {
		write(w, status, Envelope{
			Success: false,
			Message: internalMessage,
			Data:    ErrorData{Code: errors.ErrCodeInternal},
		})
		return
	}

	write(w, status, Envelope{
		Success: false,
		Message: stdErr.Message,
		Data: ErrorData{
			Code:     stdErr.Code,
			Details:  stdErr.Details,
			Metadata: stdErr.Metadata,
		},
	})
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
