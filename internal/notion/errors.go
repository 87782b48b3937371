package notion

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// RemoteError is a non-2xx response from the API
type RemoteError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Body       string `json:"-"`
}

func (e *RemoteError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("notion API error %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
	}
	return fmt.Sprintf("notion API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// RateLimited reports whether the request was rejected by the remote rate limit
func (e *RemoteError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Transient reports whether the status indicates a temporary server side failure
func (e *RemoteError) Transient() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ConflictError is returned when the remote rejects a write with 409
type ConflictError struct {
	Remote *RemoteError
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Remote.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.Remote
}

// newRemoteError decodes an error body. Bodies that are not JSON are kept verbatim.
func newRemoteError(status int, body []byte) error {
	remoteErr := &RemoteError{StatusCode: status, Body: string(body)}
	if err := json.Unmarshal(body, remoteErr); err != nil {
		remoteErr.Code = ""
		remoteErr.Message = ""
	}
	// The HTTP status wins over the status field of the body
	remoteErr.StatusCode = status

	if status == http.StatusConflict {
		return &ConflictError{Remote: remoteErr}
	}
	return remoteErr
}
