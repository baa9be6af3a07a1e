package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"place-client/internal/logging"
	"place-client/internal/notify"
)

// TokenSource is the session manager as seen by the transport.
type TokenSource interface {
	AccessToken() (string, bool)
	Refresh(ctx context.Context) (string, bool)
	ForceReauthenticate(ctx context.Context) error
}

type Config struct {
	URL      string
	Dialer   *websocket.Dialer
	Auth     TokenSource
	Notifier notify.Sink
	Logger   *logging.Logger

	HandshakeTimeout     time.Duration
	ReconnectDelay       time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts uint
}

// Session owns the single live Socket of a page. At most one socket exists
// at a time; replacing it after a credential refresh tears the old one down
// under the same lock that installs the new one.
type Session struct {
	cfg Config

	mu             sync.Mutex
	ctx            context.Context
	socket         *Socket
	connects       int
	nextID         int
	listeners      map[string]map[int]func(json.RawMessage)
	reconnectHooks map[int]func()
}

func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		panic("realtime.NewSession: logger must not be nil")
	}
	if cfg.Auth == nil {
		panic("realtime.NewSession: token source must not be nil")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	return &Session{
		cfg:            cfg,
		listeners:      map[string]map[int]func(json.RawMessage){},
		reconnectHooks: map[int]func(){},
	}
}

// Init opens the socket with the current access token. It returns
// ErrNoCredential without a token and ErrSocketExists while a socket is
// live; callers must check the error. The socket lives until ctx is done or
// Close is called.
func (s *Session) Init(ctx context.Context) (*Socket, error) {
	return s.init(ctx, nil)
}

func (s *Session) init(ctx context.Context, pending [][]byte) (*Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx, pending)
}

func (s *Session) initLocked(ctx context.Context, pending [][]byte) (*Socket, error) {
	token, ok := s.cfg.Auth.AccessToken()
	if !ok {
		return nil, ErrNoCredential
	}
	if s.socket != nil {
		return nil, ErrSocketExists
	}
	s.ctx = ctx
	sock := newSocket(ctx, socketOptions{
		url:               s.cfg.URL,
		token:             token,
		dialer:            s.cfg.Dialer,
		handshakeTimeout:  s.cfg.HandshakeTimeout,
		reconnectDelay:    s.cfg.ReconnectDelay,
		reconnectMaxDelay: s.cfg.ReconnectMaxDelay,
		maxReconnects:     s.cfg.MaxReconnectAttempts,
		pending:           pending,
		logger:            s.cfg.Logger,
	}, socketHandlers{
		onConnect:      s.handleConnect,
		onConnectError: s.handleConnectError,
		onDisconnect:   s.handleDisconnect,
		onEvent:        s.handleEvent,
	})
	s.socket = sock
	sock.start()
	s.cfg.Logger.Debug("realtime socket initialized", logging.Field("url", s.cfg.URL))
	return sock, nil
}

// Socket returns the live socket, or nil.
func (s *Session) Socket() *Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socket
}

// Emit sends on the live socket. Emits issued before the socket connects
// are buffered and survive a credential-refresh replacement.
func (s *Session) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.socket == nil {
		return ErrNotConnected
	}
	return s.socket.Emit(event, payload)
}

// On registers fn for an inbound event and returns its removal function.
// Handlers run on the socket reader and must not block.
func (s *Session) On(event string, fn func(json.RawMessage)) func() {
	if fn == nil {
		panic("realtime.Session.On: handler must not be nil")
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.listeners[event] == nil {
		s.listeners[event] = map[int]func(json.RawMessage){}
	}
	s.listeners[event][id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners[event], id)
		s.mu.Unlock()
	}
}

// OnReconnect registers fn to run after every connect but the first.
func (s *Session) OnReconnect(fn func()) func() {
	if fn == nil {
		panic("realtime.Session.OnReconnect: hook must not be nil")
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.reconnectHooks[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.reconnectHooks, id)
		s.mu.Unlock()
	}
}

// Close disconnects and forgets the live socket.
func (s *Session) Close() {
	s.mu.Lock()
	sock := s.socket
	s.socket = nil
	s.mu.Unlock()
	if sock != nil {
		sock.Disconnect()
	}
}

func (s *Session) current(sock *Socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socket == sock
}

func (s *Session) handleConnect(sock *Socket) {
	s.mu.Lock()
	if s.socket != sock {
		s.mu.Unlock()
		return
	}
	s.connects++
	reconnect := s.connects > 1
	hooks := make([]func(), 0, len(s.reconnectHooks))
	for _, hook := range s.reconnectHooks {
		hooks = append(hooks, hook)
	}
	s.mu.Unlock()

	s.cfg.Logger.Info("realtime connected", logging.Field("sid", sock.ID()))
	s.cfg.Notifier.Notify("Success", "Connected to server", notify.Success)
	if reconnect && len(hooks) > 0 {
		// hooks may wait on replies delivered by this socket's reader
		go func() {
			for _, hook := range hooks {
				hook()
			}
		}()
	}
}

func (s *Session) handleConnectError(sock *Socket, connectErr *ConnectError) {
	if !s.current(sock) {
		return
	}
	if !IsAuthError(connectErr) {
		s.cfg.Logger.Warn("realtime connect failed", logging.Field("error", connectErr.Message))
		s.cfg.Notifier.Notify("Error", "Failed to connect to server: "+connectErr.Message, notify.Error)
		return
	}

	ctx := sock.ctx
	s.cfg.Logger.Info("realtime credential rejected; refreshing", logging.Field("error", connectErr.Message))
	if _, ok := s.cfg.Auth.Refresh(ctx); !ok {
		if ctx.Err() != nil {
			s.cfg.Logger.Debug("realtime refresh abandoned", logging.Field("error", context.Cause(ctx)))
			return
		}
		if err := s.cfg.Auth.ForceReauthenticate(ctx); err != nil {
			s.cfg.Logger.Warn("force re-authentication failed", logging.Field("error", err))
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.socket != sock {
		return
	}
	pending := sock.takePending()
	sock.Disconnect()
	s.socket = nil
	if _, err := s.initLocked(s.ctx, pending); err != nil {
		s.cfg.Logger.Warn("realtime re-init failed", logging.Field("error", err))
	}
}

func (s *Session) handleDisconnect(sock *Socket, reason string) {
	if !s.current(sock) {
		return
	}
	s.cfg.Logger.Info("realtime disconnected", logging.Field("reason", reason))
}

func (s *Session) handleEvent(sock *Socket, event string, args []json.RawMessage) {
	s.mu.Lock()
	if s.socket != sock {
		s.mu.Unlock()
		return
	}
	handlers := make([]func(json.RawMessage), 0, len(s.listeners[event]))
	for _, fn := range s.listeners[event] {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	var payload json.RawMessage
	if len(args) > 0 {
		payload = args[0]
	}
	if len(handlers) == 0 {
		s.cfg.Logger.Debug("ignoring realtime event", logging.Field("event", event))
		return
	}
	for _, fn := range handlers {
		fn(payload)
	}
}
