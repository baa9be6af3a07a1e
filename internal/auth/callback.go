package auth

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"place-client/internal/config"
	"place-client/internal/logging"
	"place-client/internal/notify"
)

var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>place</title></head>
<body><p>{{.}}</p></body></html>
`))

// CallbackServer serves the redirect URI of the authorization flow. It
// exchanges the received code and returns once tokens are stored.
type CallbackServer struct {
	Addr          string
	Manager       *Manager
	Notifier      notify.Sink
	Logger        *logging.Logger
	RedirectDelay time.Duration
}

// Run listens until a code has been exchanged successfully or ctx is done.
// A failed exchange is reported, then re-authentication is forced after
// RedirectDelay and the server keeps waiting for the next code.
func (s *CallbackServer) Run(ctx context.Context) error {
	if s.Manager == nil {
		panic("auth.CallbackServer.Run: manager must not be nil")
	}
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen on callback address: %w", err)
	}
	return s.Serve(ctx, listener)
}

func (s *CallbackServer) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(config.CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		s.handle(ctx, w, r, done)
	})
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	s.Logger.Info("waiting for login callback", logging.Field("addr", listener.Addr().String()))

	var result error
	select {
	case <-ctx.Done():
		result = context.Cause(ctx)
		if errors.Is(result, context.Canceled) {
			result = nil
		}
	case <-done:
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	return result
}

func (s *CallbackServer) handle(ctx context.Context, w http.ResponseWriter, r *http.Request, done chan<- struct{}) {
	code := r.URL.Query().Get("code")
	if code == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = callbackPage.Execute(w, "Missing authorization code.")
		return
	}

	if _, err := s.Manager.ExchangeCode(r.Context(), code); err != nil {
		s.notify("Error", "Authentication failed: "+err.Error(), notify.Error)
		w.WriteHeader(http.StatusUnauthorized)
		_ = callbackPage.Execute(w, "Authentication failed. Redirecting to login...")
		go s.redirectLater(ctx)
		return
	}

	s.notify("Success", "Authentication successful", notify.Success)
	_ = callbackPage.Execute(w, "Authentication successful. You can close this tab.")
	select {
	case done <- struct{}{}:
	default:
	}
}

func (s *CallbackServer) redirectLater(ctx context.Context) {
	timer := time.NewTimer(s.RedirectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if err := s.Manager.ForceReauthenticate(ctx); err != nil {
		s.Logger.Warn("redirect to login failed", logging.Field("error", err))
	}
}

func (s *CallbackServer) notify(title, message string, kind notify.Kind) {
	if s.Notifier != nil {
		s.Notifier.Notify(title, message, kind)
	}
}
