package runstatus

import "strings"

const (
	Starting         = "Starting"
	Authenticated    = "Authenticated"
	Connected        = "Connected"
	Subscribed       = "Subscribed"
	CanvasLoaded     = "Canvas loaded"
	Reconnecting     = "Reconnecting"
	Disconnected     = "Disconnected"
	DisconnectedAuth = "Disconnected (auth)"
)

const (
	KeyStarting         = "starting"
	KeyAuthenticated    = "authenticated"
	KeyConnected        = "connected"
	KeySubscribed       = "subscribed"
	KeyCanvasLoaded     = "canvas loaded"
	KeyReconnecting     = "reconnecting"
	KeyDisconnected     = "disconnected"
	KeyDisconnectedAuth = "disconnected (auth)"
)

func Key(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// Live reports whether status describes an open connection.
func Live(status string) bool {
	switch Key(status) {
	case KeyConnected, KeySubscribed, KeyCanvasLoaded:
		return true
	default:
		return false
	}
}
