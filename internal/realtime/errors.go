package realtime

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoCredential = errors.New("no access token for realtime connection")
	ErrSocketExists = errors.New("realtime socket already initialized")
	ErrNotConnected = errors.New("realtime socket not initialized")
	// ErrServerDisconnect ends a socket that the server disconnected on
	// purpose; such sockets are not reconnected.
	ErrServerDisconnect = errors.New("server disconnected socket")
)

var authErrorMarkers = []string{"Token expired", "Unauthorized"}

// ConnectError is a connection refusal reported by the server or the
// handshake, the connect_error event of Socket.IO.
type ConnectError struct {
	Message string
	Status  int
}

func (e *ConnectError) Error() string {
	if e == nil {
		return "connect error"
	}
	if e.Status != 0 {
		return fmt.Sprintf("connect error (%d): %s", e.Status, e.Message)
	}
	return "connect error: " + e.Message
}

// IsAuthError reports whether err is a connect error caused by an expired or
// rejected credential.
func IsAuthError(err error) bool {
	var connectErr *ConnectError
	if !errors.As(err, &connectErr) {
		return false
	}
	for _, marker := range authErrorMarkers {
		if strings.Contains(connectErr.Message, marker) {
			return true
		}
	}
	return false
}
