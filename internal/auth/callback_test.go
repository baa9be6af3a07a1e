package auth

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"place-client/internal/notify"
)

type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSink) Notify(_ string, message string, _ notify.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func startCallback(t *testing.T, server *CallbackServer) (string, <-chan error, context.CancelFunc) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()
	return "http://" + listener.Addr().String() + "/complete/epita/", done, cancel
}

func TestCallbackServer_ExchangesCodeAndStops(t *testing.T) {
	manager, _ := newTestManager(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, `{"id_token":"id-1","refresh_token":"ref-1"}`), nil
	}, nil)
	sink := &recordingSink{}
	server := &CallbackServer{Manager: manager, Notifier: sink, Logger: manager.logger}
	base, done, cancel := startCallback(t, server)
	defer cancel()

	missing, err := http.Get(base)
	if err != nil {
		t.Fatalf("GET without code error = %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusBadRequest {
		t.Fatalf("status without code = %d", missing.StatusCode)
	}

	resp, err := http.Get(base + "?code=abc")
	if err != nil {
		t.Fatalf("GET with code error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "successful") {
		t.Fatalf("callback response = %d %q", resp.StatusCode, body)
	}

	if err := <-done; err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if !manager.IsAuthenticated() {
		t.Fatalf("expected stored tokens after callback")
	}
}

func TestCallbackServer_FailedExchangeRedirectsAfterDelay(t *testing.T) {
	navigated := make(chan string, 1)
	manager, _ := newTestManager(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusBadRequest, `{"error":"invalid_grant"}`), nil
	}, NavigatorFunc(func(_ context.Context, target string) error {
		navigated <- target
		return nil
	}))
	sink := &recordingSink{}
	server := &CallbackServer{Manager: manager, Notifier: sink, Logger: manager.logger, RedirectDelay: 10 * time.Millisecond}
	base, done, cancel := startCallback(t, server)

	resp, err := http.Get(base + "?code=bad")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	select {
	case target := <-navigated:
		if !strings.HasPrefix(target, "https://auth.example.test/authorize?") {
			t.Fatalf("navigated to %q", target)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a redirect to the authorization endpoint")
	}
	messages := sink.snapshot()
	if len(messages) == 0 || !strings.HasPrefix(messages[0], "Authentication failed") {
		t.Fatalf("notifications = %v", messages)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve() after cancel error = %v", err)
	}
}
