package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"place-client/internal/logging"
)

const writeTimeout = 10 * time.Second

type socketHandlers struct {
	onConnect      func(*Socket)
	onConnectError func(*Socket, *ConnectError)
	onDisconnect   func(*Socket, string)
	onEvent        func(*Socket, string, []json.RawMessage)
}

type socketOptions struct {
	url               string
	token             string
	dialer            *websocket.Dialer
	handshakeTimeout  time.Duration
	reconnectDelay    time.Duration
	reconnectMaxDelay time.Duration
	maxReconnects     uint
	pending           [][]byte
	logger            *logging.Logger
}

// Socket is one Socket.IO client connection. Low-level drops are redialled
// with exponential backoff using the same credential; a refused connection
// or a server-side disconnect ends the socket for good.
type Socket struct {
	opts     socketOptions
	handlers socketHandlers
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	id        string
	pending   [][]byte

	writeMu sync.Mutex
}

func newSocket(parent context.Context, opts socketOptions, handlers socketHandlers) *Socket {
	ctx, cancel := context.WithCancel(parent)
	if opts.dialer == nil {
		opts.dialer = websocket.DefaultDialer
	}
	if opts.handshakeTimeout <= 0 {
		opts.handshakeTimeout = 15 * time.Second
	}
	if opts.reconnectDelay <= 0 {
		opts.reconnectDelay = time.Second
	}
	if opts.reconnectMaxDelay <= 0 {
		opts.reconnectMaxDelay = 5 * time.Second
	}
	return &Socket{
		opts:     opts,
		handlers: handlers,
		logger:   opts.logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		pending:  opts.pending,
	}
}

func (s *Socket) start() {
	go s.run()
}

// Done is closed once the socket has stopped for good.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ID is the server-assigned socket id of the current connection.
func (s *Socket) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Emit sends an event, or buffers it until the next successful connect.
func (s *Socket) Emit(event string, payload any) error {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}

	s.mu.Lock()
	if !s.connected || s.conn == nil {
		s.pending = append(s.pending, frame)
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.mu.Unlock()

	if err := s.write(conn, frame); err != nil {
		s.logger.Debug("realtime emit failed; buffering", logging.Field("event", event), logging.Field("error", err))
		s.mu.Lock()
		s.pending = append(s.pending, frame)
		s.mu.Unlock()
	}
	return nil
}

// Disconnect closes the socket without waiting for the reader to stop.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	conn, connected := s.conn, s.connected
	s.mu.Unlock()
	if connected && conn != nil {
		_ = s.write(conn, disconnectFrame)
	}
	s.cancel()
}

func (s *Socket) takePending() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = nil
	return pending
}

func (s *Socket) write(conn *websocket.Conn, frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Socket) run() {
	defer close(s.done)
	defer s.cancel()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.opts.reconnectDelay
	retry.MaxInterval = s.opts.reconnectMaxDelay
	retry.Reset()

	_, err := backoff.Retry(s.ctx, func() (struct{}, error) {
		return struct{}{}, s.runConnection(retry)
	},
		backoff.WithBackOff(retry),
		backoff.WithMaxElapsedTime(0),
		backoff.WithMaxTries(s.opts.maxReconnects),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Debug("realtime reconnecting",
				logging.Field("error", err),
				logging.Field("next_retry", next.String()))
		}),
	)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Debug("realtime socket stopped")
	default:
		s.logger.Debug("realtime socket ended", logging.Field("error", err))
	}
}

// runConnection dials once and serves the connection until it drops. Errors
// that must not be retried are wrapped with backoff.Permanent.
func (s *Socket) runConnection(retry *backoff.ExponentialBackOff) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.opts.token)

	dialCtx, cancelDial := context.WithTimeout(s.ctx, s.opts.handshakeTimeout)
	conn, resp, err := s.opts.dialer.DialContext(dialCtx, s.opts.url, header)
	cancelDial()
	if err != nil {
		if s.ctx.Err() != nil {
			return backoff.Permanent(s.ctx.Err())
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			message := connectErrorMessage(data)
			if message == "" {
				message = resp.Status
			}
			connectErr := &ConnectError{Message: message, Status: resp.StatusCode}
			s.handlers.onConnectError(s, connectErr)
			return backoff.Permanent(connectErr)
		}
		s.handlers.onConnectError(s, &ConnectError{Message: err.Error()})
		return err
	}
	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stop()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	connected := false
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.connected = false
		s.mu.Unlock()
		_ = conn.Close()
		if connected {
			retry.Reset()
		}
	}()

	readWindow := s.opts.handshakeTimeout
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			if s.ctx.Err() != nil {
				if connected {
					s.handlers.onDisconnect(s, "io client disconnect")
				}
				return backoff.Permanent(s.ctx.Err())
			}
			if connected {
				s.handlers.onDisconnect(s, "transport close")
			}
			return readErr
		}

		p, parseErr := parsePacket(data)
		if parseErr != nil {
			s.logger.Debug("ignoring malformed realtime frame",
				logging.Field("error", parseErr),
				logging.Field("frame", logging.Truncate(string(data))))
			continue
		}

		switch p.kind {
		case packetOpen:
			var open openPayload
			if err := json.Unmarshal(p.payload, &open); err != nil {
				return errors.New("invalid engine open packet")
			}
			readWindow = open.liveness()
			if err := s.write(conn, connectFrame); err != nil {
				return err
			}
		case packetPing:
			if err := s.write(conn, pongFrame); err != nil {
				return err
			}
		case packetConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			_ = json.Unmarshal(p.payload, &ack)
			if err := s.markConnected(conn, ack.SID); err != nil {
				return err
			}
			connected = true
			s.handlers.onConnect(s)
		case packetConnectError:
			connectErr := &ConnectError{Message: connectErrorMessage(p.payload)}
			s.handlers.onConnectError(s, connectErr)
			return backoff.Permanent(connectErr)
		case packetEvent:
			s.handlers.onEvent(s, p.event, p.args)
		case packetDisconnect:
			if connected {
				s.handlers.onDisconnect(s, "io server disconnect")
			}
			return backoff.Permanent(ErrServerDisconnect)
		case packetClose:
			if connected {
				s.handlers.onDisconnect(s, "transport close")
			}
			return errors.New("transport closed by server")
		}
	}
}

// markConnected flushes buffered emits in order before any new emit can be
// written directly.
func (s *Socket) markConnected(conn *websocket.Conn, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 {
		if err := s.write(conn, s.pending[0]); err != nil {
			return err
		}
		s.pending = s.pending[1:]
	}
	s.connected = true
	s.id = sid
	return nil
}
