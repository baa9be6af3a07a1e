package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"place-client/internal/app"
	"place-client/internal/auth"
	"place-client/internal/client"
	"place-client/internal/config"
	"place-client/internal/logging"
	"place-client/internal/notify"
	"place-client/internal/realtime"
	"place-client/internal/streams"
	"place-client/internal/tokens"
)

const defaultHTTPTimeout = 10 * time.Second

// ErrLoggedOut ends a page whose tokens were cleared by another process.
var ErrLoggedOut = errors.New("logged out")

type Service interface {
	RunContext(ctx context.Context) error
}

type StartHooks struct {
	Renderer app.Renderer
	Notifier notify.Sink
	// Out receives the login URL; defaults to stderr.
	Out        io.Writer
	OnNavigate func(target string)
	OnStatus   func(string)
}

// PlaceService wires one token store, session manager and API client, and
// builds a fresh transport, protocol client and app for every page.
type PlaceService struct {
	opts      config.Options
	endpoints config.APIEndpoints
	room      string
	logger    *logging.Logger
	hooks     StartHooks

	dialer    *websocket.Dialer
	store     *tokens.Store
	manager   *auth.Manager
	api       *client.PlaceClient
	notifier  notify.Sink
	renderer  app.Renderer
	navigator *pageNavigator
}

func NewService(opts config.Options, logger *logging.Logger) (*PlaceService, error) {
	return NewServiceWithHooks(opts, logger, StartHooks{})
}

func NewServiceWithHooks(opts config.Options, logger *logging.Logger, hooks StartHooks) (*PlaceService, error) {
	if logger == nil {
		panic("runtime.NewServiceWithHooks: logger must not be nil")
	}
	if err := config.ValidateRequired(opts); err != nil {
		return nil, err
	}
	endpoints, err := config.BuildEndpoints(opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("constructed endpoints",
		logging.Field("api_base_url", endpoints.APIBaseURL),
		logging.Field("socket_url", endpoints.SocketURL),
		logging.Field("token_url", endpoints.TokenURL),
		logging.Field("authorize_url", endpoints.AuthorizeURL),
		logging.Field("redirect_uri", endpoints.RedirectURI),
	)

	store, err := tokens.Open(opts.TokenFile)
	if err != nil {
		return nil, err
	}

	notifier := hooks.Notifier
	if notifier == nil {
		notifier = notify.LogSink{Logger: logger}
	}
	renderer := hooks.Renderer
	if renderer == nil {
		renderer = newSurfaceRenderer(logger)
	}
	out := hooks.Out
	if out == nil {
		out = os.Stderr
	}

	httpClient := &http.Client{Timeout: defaultHTTPTimeout}
	var chain auth.Chain
	if hooks.OnNavigate != nil {
		chain = append(chain, auth.NavigatorFunc(func(_ context.Context, target string) error {
			hooks.OnNavigate(target)
			return nil
		}))
	}
	chain = append(chain, &auth.Browser{Out: out, NoBrowser: opts.NoBrowser, Logger: logger})
	navigator := &pageNavigator{next: chain}
	manager := auth.NewManager(auth.Options{
		HTTP:         httpClient,
		TokenURL:     endpoints.TokenURL,
		AuthorizeURL: endpoints.AuthorizeURL,
		ClientID:     opts.ClientID,
		RedirectURI:  endpoints.RedirectURI,
		Store:        store,
		Navigator:    navigator,
		Logger:       logger,
	})

	return &PlaceService{
		opts:      opts,
		endpoints: endpoints,
		room:      config.RoomSlugFromPath(opts.Room),
		logger:    logger,
		hooks:     hooks,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		store:     store,
		manager:   manager,
		api:       client.New(httpClient, endpoints, manager, notifier, logger),
		notifier:  notifier,
		renderer:  renderer,
		navigator: navigator,
	}, nil
}

func (s *PlaceService) Room() string {
	return s.room
}

// RunContext enters the room and keeps it rendered. Whenever the page ends
// in a re-authentication it waits for the login callback and enters again.
func (s *PlaceService) RunContext(ctx context.Context) error {
	for {
		navigated, err := s.runPage(ctx)
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		switch {
		case navigated:
			s.logger.Info("waiting for login to complete")
			if err := s.awaitCallback(ctx); err != nil {
				return err
			}
		case errors.Is(err, app.ErrReauthenticationRequired), errors.Is(err, ErrLoggedOut):
			if err := s.Login(ctx); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

func (s *PlaceService) runPage(ctx context.Context) (bool, error) {
	pageCtx, cancelPage, leave := s.navigator.enter(ctx)

	session := realtime.NewSession(realtime.Config{
		URL:      s.endpoints.SocketURL,
		Dialer:   s.dialer,
		Auth:     s.manager,
		Notifier: s.notifier,
		Logger:   s.logger,
	})
	placeApp := app.New(s.room, app.Deps{
		Session:   s.manager,
		API:       s.api,
		Transport: session,
		Streams:   streams.New(session, s.opts.AckTimeout, s.logger),
		Renderer:  s.renderer,
		Notifier:  s.notifier,
		Logger:    s.logger,
	}, app.Callbacks{OnStatusChange: s.hooks.OnStatus})

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		err := s.store.Watch(pageCtx, func(pair tokens.Pair) {
			if pair.AccessToken == "" {
				s.logger.Info("tokens cleared; leaving room")
				cancelPage(ErrLoggedOut)
			}
		})
		if err != nil {
			s.logger.Warn("token watch stopped", logging.Field("error", err))
		}
	}()

	err := placeApp.RunContext(pageCtx)
	if cause := context.Cause(pageCtx); err == nil || errors.Is(err, context.Canceled) {
		if cause != nil && !errors.Is(cause, context.Canceled) {
			err = cause
		}
	}
	navigated := leave()
	<-watchDone
	if err != nil && !navigated && !errors.Is(err, ErrLoggedOut) && !errors.Is(err, app.ErrReauthenticationRequired) && ctx.Err() == nil {
		s.logger.Warn("room session ended", logging.Field("error", err))
	}
	return navigated, err
}

// Login opens the authorization page when no token is stored, then serves
// the callback page until tokens arrive.
func (s *PlaceService) Login(ctx context.Context) error {
	if s.manager.IsAuthenticated() {
		s.logger.Info("already authenticated")
		return nil
	}
	if err := s.manager.ForceReauthenticate(ctx); err != nil {
		s.logger.Warn("open login page failed", logging.Field("error", err))
	}
	return s.awaitCallback(ctx)
}

func (s *PlaceService) awaitCallback(ctx context.Context) error {
	server := &auth.CallbackServer{
		Addr:          s.opts.CallbackAddr,
		Manager:       s.manager,
		Notifier:      s.notifier,
		Logger:        s.logger,
		RedirectDelay: s.opts.RedirectDelay,
	}
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("login callback: %w", err)
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

func (s *PlaceService) Logout() error {
	if err := s.manager.Logout(); err != nil {
		return err
	}
	s.logger.Info("logged out", logging.Field("token_file", s.store.Path()))
	return nil
}
