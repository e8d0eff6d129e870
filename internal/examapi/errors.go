package examapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport wraps failures that happened before a response was read.
	ErrTransport = errors.New("exam service unreachable")
	// ErrMalformedResponse is returned when a 2xx body is missing expected fields.
	ErrMalformedResponse = errors.New("malformed exam service response")
)

// APIError is a non-success HTTP response from the exam service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exam service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("exam service returned %d: %s", e.StatusCode, e.Message)
}

// Unauthorized reports whether the service rejected the credential.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusUnprocessableEntity
}

// errorBody covers both {"error": "..."} and the JWT layer's {"msg": "..."}.
type errorBody struct {
	Error   string `json:"error"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

func (b errorBody) text() string {
	switch {
	case b.Error != "":
		return b.Error
	case b.Msg != "":
		return b.Msg
	default:
		return b.Message
	}
}
