package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"place-client/internal/logging"
	"place-client/internal/notify"
)

// fakeSocketServer speaks just enough Engine.IO v4 / Socket.IO v5 to accept
// clients, refuse them, and exchange events.
type fakeSocketServer struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	// rejectDial refuses the websocket upgrade with the given status and body.
	rejectDial func(auth string) (int, string)
	// refuseConnect answers the namespace connect with a CONNECT_ERROR.
	refuseConnect func(auth string) string
	// dropAfterConnect closes the connection right after connecting.
	dropAfterConnect func(attempt int) bool

	attempts atomic.Int32
	mu       sync.Mutex
	auths    []string
	frames   chan string
	conns    chan *websocket.Conn
}

func newFakeSocketServer(t *testing.T) *fakeSocketServer {
	t.Helper()
	f := &fakeSocketServer{
		t:      t,
		frames: make(chan string, 64),
		conns:  make(chan *websocket.Conn, 8),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSocketServer) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
}

func (f *fakeSocketServer) seenAuth() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auths...)
}

func (f *fakeSocketServer) handle(w http.ResponseWriter, r *http.Request) {
	attempt := int(f.attempts.Add(1))
	auth := r.Header.Get("Authorization")
	f.mu.Lock()
	f.auths = append(f.auths, auth)
	f.mu.Unlock()

	if f.rejectDial != nil {
		if status, body := f.rejectDial(auth); status != 0 {
			http.Error(w, body, status)
			return
		}
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"engine","pingInterval":25000,"pingTimeout":20000}`)); err != nil {
		return
	}
	_, data, err := conn.ReadMessage()
	if err != nil || string(data) != "40" {
		return
	}
	if f.refuseConnect != nil {
		if message := f.refuseConnect(auth); message != "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`44{"message":"`+message+`"}`))
			return
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"socket-1"}`)); err != nil {
		return
	}
	if f.dropAfterConnect != nil && f.dropAfterConnect(attempt) {
		return
	}
	f.conns <- conn
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.frames <- string(data)
	}
}

type fakeTokens struct {
	mu           sync.Mutex
	token        string
	refreshed    string
	refreshCalls atomic.Int32
	reauthCalls  atomic.Int32

	// hold makes Refresh wait for its context, signalling once it is waiting.
	hold chan struct{}
}

func (f *fakeTokens) AccessToken() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) Refresh(ctx context.Context) (string, bool) {
	f.refreshCalls.Add(1)
	if f.hold != nil {
		close(f.hold)
		<-ctx.Done()
		return "", false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshed == "" {
		return "", false
	}
	f.token = f.refreshed
	return f.token, true
}

func (f *fakeTokens) ForceReauthenticate(context.Context) error {
	f.reauthCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	return nil
}

type notification struct {
	message string
	kind    notify.Kind
}

func newTestSession(t *testing.T, url string, tokens *fakeTokens) (*Session, <-chan notification) {
	t.Helper()
	logger := logging.New(false)
	logger.SetTerminalOutputEnabled(false)
	notes := make(chan notification, 32)
	session := NewSession(Config{
		URL:  url,
		Auth: tokens,
		Notifier: notify.Func(func(_ string, message string, kind notify.Kind) {
			notes <- notification{message: message, kind: kind}
		}),
		Logger:            logger,
		HandshakeTimeout:  2 * time.Second,
		ReconnectDelay:    10 * time.Millisecond,
		ReconnectMaxDelay: 50 * time.Millisecond,
	})
	t.Cleanup(session.Close)
	return session, notes
}

func waitNotification(t *testing.T, notes <-chan notification, prefix string) notification {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case n := <-notes:
			if strings.HasPrefix(n.message, prefix) {
				return n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for notification %q", prefix)
			return notification{}
		}
	}
}

func waitFrame(t *testing.T, frames <-chan string, prefix string) string {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case frame := <-frames:
			if strings.HasPrefix(frame, prefix) {
				return frame
			}
		case <-timeout:
			t.Fatalf("timed out waiting for frame %q", prefix)
			return ""
		}
	}
}

func waitConn(t *testing.T, conns <-chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for a connection")
		return nil
	}
}

func TestSessionInit_RequiresCredential(t *testing.T) {
	session, _ := newTestSession(t, "ws://127.0.0.1:1/socket.io/", &fakeTokens{})
	sock, err := session.Init(context.Background())
	if !errors.Is(err, ErrNoCredential) || sock != nil {
		t.Fatalf("Init() = %v, %v; want nil, ErrNoCredential", sock, err)
	}
	if err := session.Emit("message", "x"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit() without socket error = %v", err)
	}
}

func TestSession_ConnectEmitAndReceive(t *testing.T) {
	server := newFakeSocketServer(t)
	session, notes := newTestSession(t, server.url(), &fakeTokens{token: "tok-1"})

	received := make(chan json.RawMessage, 1)
	off := session.On("pixel-update", func(payload json.RawMessage) {
		received <- payload
	})
	defer off()

	sock, err := session.Init(context.Background())
	if err != nil || sock == nil {
		t.Fatalf("Init() = %v, %v", sock, err)
	}
	if _, err := session.Init(context.Background()); !errors.Is(err, ErrSocketExists) {
		t.Fatalf("second Init() error = %v, want ErrSocketExists", err)
	}
	// emitted before the connect completes; must be flushed on connect
	if err := session.Emit("message", map[string]string{"id": "a"}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	waitNotification(t, notes, "Connected to server")
	conn := waitConn(t, server.conns)
	if frame := waitFrame(t, server.frames, "42"); frame != `42["message",{"id":"a"}]` {
		t.Fatalf("frame = %q", frame)
	}
	if got := server.seenAuth(); len(got) != 1 || got[0] != "Bearer tok-1" {
		t.Fatalf("Authorization headers = %v", got)
	}
	if sock.ID() != "socket-1" || !sock.Connected() {
		t.Fatalf("socket id=%q connected=%v", sock.ID(), sock.Connected())
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("2")); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	waitFrame(t, server.frames, "3")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`42["pixel-update",{"color":3}]`)); err != nil {
		t.Fatalf("write event: %v", err)
	}
	select {
	case payload := <-received:
		if string(payload) != `{"color":3}` {
			t.Fatalf("payload = %s", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("pixel-update listener never called")
	}

	session.Close()
	waitFrame(t, server.frames, "41")
	select {
	case <-sock.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("socket did not stop after Close")
	}
	if session.Socket() != nil {
		t.Fatalf("Socket() after Close should be nil")
	}
}

func TestSession_ExpiredCredentialRefreshesAndReplacesSocket(t *testing.T) {
	server := newFakeSocketServer(t)
	server.refuseConnect = func(auth string) string {
		if auth == "Bearer old" {
			return "Token expired"
		}
		return ""
	}
	tokens := &fakeTokens{token: "old", refreshed: "new"}
	session, notes := newTestSession(t, server.url(), tokens)

	first, err := session.Init(context.Background())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := session.Emit("message", "queued"); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	waitNotification(t, notes, "Connected to server")
	waitConn(t, server.conns)
	if frame := waitFrame(t, server.frames, "42"); frame != `42["message","queued"]` {
		t.Fatalf("carried frame = %q", frame)
	}

	if got := tokens.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	if got := tokens.reauthCalls.Load(); got != 0 {
		t.Fatalf("reauth calls = %d, want 0", got)
	}
	second := session.Socket()
	if second == nil || second == first {
		t.Fatalf("expected a replacement socket")
	}
	select {
	case <-first.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("old socket was not torn down")
	}
	auths := server.seenAuth()
	if len(auths) != 2 || auths[0] != "Bearer old" || auths[1] != "Bearer new" {
		t.Fatalf("Authorization headers = %v", auths)
	}
}

func TestSession_RejectedDialWithoutRefreshForcesReauth(t *testing.T) {
	server := newFakeSocketServer(t)
	server.rejectDial = func(string) (int, string) {
		return http.StatusUnauthorized, "Unauthorized"
	}
	tokens := &fakeTokens{token: "old"}
	session, _ := newTestSession(t, server.url(), tokens)

	sock, err := session.Init(context.Background())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	select {
	case <-sock.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("refused socket should stop")
	}
	if tokens.refreshCalls.Load() != 1 || tokens.reauthCalls.Load() != 1 {
		t.Fatalf("refresh=%d reauth=%d", tokens.refreshCalls.Load(), tokens.reauthCalls.Load())
	}
	if got := server.attempts.Load(); got != 1 {
		t.Fatalf("dial attempts = %d, want 1", got)
	}
}

func TestSession_OtherConnectErrorOnlyNotifies(t *testing.T) {
	server := newFakeSocketServer(t)
	server.refuseConnect = func(string) string { return "room closed" }
	tokens := &fakeTokens{token: "tok", refreshed: "new"}
	session, notes := newTestSession(t, server.url(), tokens)

	sock, err := session.Init(context.Background())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	n := waitNotification(t, notes, "Failed to connect to server: ")
	if n.message != "Failed to connect to server: room closed" || n.kind != notify.Error {
		t.Fatalf("notification = %+v", n)
	}
	select {
	case <-sock.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("refused socket should stop")
	}
	if tokens.refreshCalls.Load() != 0 || tokens.reauthCalls.Load() != 0 {
		t.Fatalf("refresh=%d reauth=%d", tokens.refreshCalls.Load(), tokens.reauthCalls.Load())
	}
	if session.Socket() != sock {
		t.Fatalf("non-auth errors must not replace the socket")
	}
}

func TestSession_TransportDropRedialsAndRunsReconnectHooks(t *testing.T) {
	server := newFakeSocketServer(t)
	server.dropAfterConnect = func(attempt int) bool { return attempt == 1 }
	session, notes := newTestSession(t, server.url(), &fakeTokens{token: "tok"})

	reconnected := make(chan struct{}, 1)
	session.OnReconnect(func() {
		reconnected <- struct{}{}
	})
	if _, err := session.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	waitNotification(t, notes, "Connected to server")
	waitNotification(t, notes, "Connected to server")
	waitConn(t, server.conns)
	select {
	case <-reconnected:
	case <-time.After(3 * time.Second):
		t.Fatalf("reconnect hook not called")
	}
	if got := server.attempts.Load(); got != 2 {
		t.Fatalf("dial attempts = %d, want 2", got)
	}
}

func TestSession_CancelledContextStopsSocket(t *testing.T) {
	server := newFakeSocketServer(t)
	session, notes := newTestSession(t, server.url(), &fakeTokens{token: "tok"})
	ctx, cancel := context.WithCancel(context.Background())

	sock, err := session.Init(ctx)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	waitNotification(t, notes, "Connected to server")
	cancel()
	select {
	case <-sock.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("socket did not stop on context cancel")
	}
	if err := sock.Emit("message", "late"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit() on stopped socket error = %v", err)
	}
}

func TestSession_ClosedDuringRefreshDoesNotReauthenticate(t *testing.T) {
	server := newFakeSocketServer(t)
	server.refuseConnect = func(string) string { return "Token expired" }
	tokens := &fakeTokens{token: "old", hold: make(chan struct{})}
	session, _ := newTestSession(t, server.url(), tokens)

	sock, err := session.Init(context.Background())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	select {
	case <-tokens.hold:
	case <-time.After(3 * time.Second):
		t.Fatalf("refresh never started")
	}
	session.Close()
	select {
	case <-sock.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("socket did not stop after Close")
	}
	if got := tokens.reauthCalls.Load(); got != 0 {
		t.Fatalf("reauth calls = %d, want 0", got)
	}
	if token, ok := tokens.AccessToken(); !ok || token != "old" {
		t.Fatalf("AccessToken() = %q, %v; want credential kept", token, ok)
	}
}
