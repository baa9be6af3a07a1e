package client

import (
	"errors"
	"net/http"
)

var (
	// ErrReauthenticating is returned by the typed endpoints when the request
	// ended in a forced re-authentication.
	ErrReauthenticating = errors.New("re-authentication in progress")
	// ErrRequestFailed is returned when no response was received at all.
	ErrRequestFailed = errors.New("request failed")
)

type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http request failed"
	}
	if e.Status != "" {
		return e.Status
	}
	return "http request failed"
}

func IsUnauthorized(err error) bool {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden
}
