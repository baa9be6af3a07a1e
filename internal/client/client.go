package client

import (
	"context"
	"net/http"

	"place-client/internal/config"
	"place-client/internal/logging"
	"place-client/internal/notify"
)

// Session is the slice of the session manager the executor depends on.
type Session interface {
	AccessToken() (string, bool)
	Refresh(ctx context.Context) (string, bool)
	ForceReauthenticate(ctx context.Context) error
}

type PlaceClient struct {
	http      *http.Client
	endpoints config.APIEndpoints
	session   Session
	notifier  notify.Sink
	logger    *logging.Logger
}

func New(httpClient *http.Client, endpoints config.APIEndpoints, session Session, notifier notify.Sink, logger *logging.Logger) *PlaceClient {
	if logger == nil {
		panic("client.New: logger must not be nil")
	}
	if session == nil {
		panic("client.New: session must not be nil")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	return &PlaceClient{http: httpClient, endpoints: endpoints, session: session, notifier: notifier, logger: logger}
}
