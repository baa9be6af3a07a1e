package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"place-client/internal/canvas"
	"place-client/internal/client"
	"place-client/internal/logging"
	"place-client/internal/notify"
	"place-client/internal/realtime"
	"place-client/internal/runctx"
	"place-client/internal/runstatus"
	"place-client/internal/streams"
)

const pixelBacklog = 1024

// Session is the token lifecycle as the room workflow sees it.
type Session interface {
	IsAuthenticated() bool
	AccessToken() (string, bool)
	IsExpired(token string) bool
	Refresh(ctx context.Context) (string, bool)
	ForceReauthenticate(ctx context.Context) error
}

type API interface {
	FetchRoomConfig(ctx context.Context, slug string) (client.RoomConfig, error)
	FetchCanvas(ctx context.Context, slug string) (string, error)
}

type Transport interface {
	Init(ctx context.Context) (*realtime.Socket, error)
	OnReconnect(fn func()) func()
	Close()
}

type Streams interface {
	SubscribeToRoom(ctx context.Context, slug string) error
	Resubscribe(ctx context.Context) error
	OnPixelUpdate(slug string, fn func(streams.PixelUpdate)) func()
}

// Renderer draws the canvas: once in full, then one pixel at a time.
type Renderer interface {
	InitCanvas(cfg client.RoomConfig, pixels []uint8)
	RenderUpdate(color, x, y int)
}

type Deps struct {
	Session   Session
	API       API
	Transport Transport
	Streams   Streams
	Renderer  Renderer
	Notifier  notify.Sink
	Logger    *logging.Logger
}

type Callbacks struct {
	OnStatusChange func(string)
}

// PlaceApp enters one room: it authenticates, connects the socket,
// subscribes, loads the packed canvas and then streams pixel updates into
// the renderer until the context ends.
type PlaceApp struct {
	room   string
	deps   Deps
	hooks  Callbacks
	status runtimeStatusState
}

func New(room string, deps Deps, hooks Callbacks) *PlaceApp {
	if deps.Logger == nil {
		panic("app.New: logger must not be nil")
	}
	if deps.Session == nil || deps.API == nil || deps.Transport == nil || deps.Streams == nil {
		panic("app.New: session, api, transport and streams are required")
	}
	if deps.Renderer == nil {
		panic("app.New: renderer must not be nil")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	return &PlaceApp{room: room, deps: deps, hooks: hooks}
}

func (a *PlaceApp) Room() string {
	return a.room
}

func (a *PlaceApp) RunContext(ctx context.Context) error {
	logger := a.deps.Logger
	logger.Info("entering room", logging.Field("room", a.room))
	a.setRuntimeStatus(runstatus.Starting)

	if err := a.ensureSession(ctx); err != nil {
		return err
	}
	a.setRuntimeStatus(runstatus.Authenticated)

	if _, err := a.deps.Transport.Init(ctx); err != nil {
		a.deps.Notifier.Notify("Error", "Failed to connect to server", notify.Error)
		a.setRuntimeStatus(runstatus.Disconnected)
		return fmt.Errorf("%w: %w", ErrRealtimeConnect, err)
	}
	defer a.deps.Transport.Close()

	// attached before the canvas is fetched so no update between the
	// snapshot and the first render is lost
	updates := runctx.NewQueue[streams.PixelUpdate]("pixel update forwarder", logger, pixelBacklog)
	offPixels := a.deps.Streams.OnPixelUpdate(a.room, func(update streams.PixelUpdate) {
		updates.Push(update)
	})
	defer offPixels()
	defer updates.Close()

	if err := a.deps.Streams.SubscribeToRoom(ctx, a.room); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		a.deps.Notifier.Notify("Error", "Failed to subscribe to room", notify.Error)
		return fmt.Errorf("%w: %w", ErrRoomSubscribe, err)
	}
	a.deps.Notifier.Notify("Success", "Subscribed to "+a.room, notify.Success)
	a.setRuntimeStatus(runstatus.Subscribed)

	offReconnect := a.deps.Transport.OnReconnect(func() {
		a.setRuntimeStatus(runstatus.Reconnecting)
		if err := a.deps.Streams.Resubscribe(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Warn("resubscribe after reconnect failed", logging.Field("room", a.room), logging.Field("error", err))
			}
			return
		}
		a.setRuntimeStatus(runstatus.Subscribed)
	})
	defer offReconnect()

	if err := a.loadCanvas(ctx); err != nil {
		return err
	}

	for {
		update, ok := updates.Recv(ctx)
		if !ok {
			a.setRuntimeStatus(runstatus.Disconnected)
			logger.Info("left room", logging.Field("room", a.room))
			return context.Cause(ctx)
		}
		a.deps.Renderer.RenderUpdate(update.Color, update.PosX, update.PosY)
	}
}

// ensureSession forces re-authentication without a token and refreshes an
// expired one before anything touches the network.
func (a *PlaceApp) ensureSession(ctx context.Context) error {
	session := a.deps.Session
	if !session.IsAuthenticated() {
		a.deps.Logger.Info("not authenticated")
		return a.reauthenticate(ctx)
	}
	token, _ := session.AccessToken()
	if !session.IsExpired(token) {
		return nil
	}
	a.deps.Logger.Info("access token expired; refreshing before connect")
	if _, ok := session.Refresh(ctx); !ok {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return a.reauthenticate(ctx)
	}
	return nil
}

func (a *PlaceApp) reauthenticate(ctx context.Context) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	a.setRuntimeStatus(runstatus.DisconnectedAuth)
	if err := a.deps.Session.ForceReauthenticate(ctx); err != nil {
		a.deps.Logger.Warn("force re-authentication failed", logging.Field("error", err))
	}
	return ErrReauthenticationRequired
}

func (a *PlaceApp) loadCanvas(ctx context.Context) error {
	cfg, err := a.deps.API.FetchRoomConfig(ctx, a.room)
	if err != nil {
		return a.loadFailed(ctx, "Failed to fetch room information", err)
	}
	description := ""
	if cfg.Description != nil {
		description = *cfg.Description
	}
	a.deps.Logger.Info("room information loaded",
		logging.Field("room", a.room),
		logging.Field("name", cfg.Name),
		logging.Field("description", description),
		logging.Field("dimensions", cfg.CanvasDimensions),
	)

	packed, err := a.deps.API.FetchCanvas(ctx, a.room)
	if err != nil {
		return a.loadFailed(ctx, "Failed to fetch canvas", err)
	}
	pixels := canvas.DecodePixels(packed, cfg.CanvasDimensions)
	a.deps.Renderer.InitCanvas(cfg, pixels)
	a.deps.Notifier.Notify("Success", "Canvas loaded successfully", notify.Success)
	a.setRuntimeStatus(runstatus.CanvasLoaded)
	return nil
}

func (a *PlaceApp) loadFailed(ctx context.Context, message string, err error) error {
	switch {
	case ctx.Err() != nil:
		return context.Cause(ctx)
	case errors.Is(err, client.ErrReauthenticating):
		a.setRuntimeStatus(runstatus.DisconnectedAuth)
		return fmt.Errorf("%w: %w", ErrReauthenticationRequired, err)
	case errors.Is(err, client.ErrRequestFailed):
		// already reported by the request executor
		return fmt.Errorf("%w: %w", ErrRoomLoad, err)
	default:
		a.deps.Notifier.Notify("Error", message, notify.Error)
		return fmt.Errorf("%w: %w", ErrRoomLoad, err)
	}
}

type runtimeStatusState struct {
	mu      sync.Mutex
	current string
}

func (s *runtimeStatusState) update(status string) (string, string, bool) {
	trimmed := strings.TrimSpace(status)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == trimmed {
		return s.current, trimmed, false
	}
	previous := s.current
	s.current = trimmed
	return previous, trimmed, true
}

func (a *PlaceApp) notifyStatus(status string) {
	if a.hooks.OnStatusChange == nil {
		return
	}
	a.hooks.OnStatusChange(status)
}

func (a *PlaceApp) setRuntimeStatus(status string) {
	previous, next, changed := a.status.update(status)
	if !changed {
		return
	}
	a.deps.Logger.Debug("runtime status transition",
		logging.Field("from", previous),
		logging.Field("to", next),
	)
	a.notifyStatus(status)
}
