package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"place-client/internal/logging"
	"place-client/internal/tokens"
)

const Scope = "epita profile picture"

var (
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrExchangeFailed = errors.New("token exchange failed")
	// errRefreshAbandoned ends a refresh whose callers all went away before
	// the authority answered. The stored tokens are left untouched.
	errRefreshAbandoned = errors.New("refresh abandoned")
	// ErrNavigatedAway is the cancellation cause recorded once the user agent
	// has been sent to the authorization endpoint.
	ErrNavigatedAway = errors.New("navigated to authorization endpoint")
)

// TokenStore is the persistence the manager needs.
type TokenStore interface {
	Save(access, refresh string) error
	Get() (string, bool)
	GetRefresh() (string, bool)
	Clear() error
}

// Navigator sends the user agent to an external URL.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

type Options struct {
	HTTP         *http.Client
	TokenURL     string
	AuthorizeURL string
	ClientID     string
	RedirectURI  string
	Store        TokenStore
	Navigator    Navigator
	Logger       *logging.Logger
	Now          func() time.Time
}

// Manager owns the token lifecycle: authentication state, code exchange,
// refresh and forced re-authentication.
type Manager struct {
	http         *http.Client
	tokenURL     string
	authorizeURL string
	clientID     string
	redirectURI  string
	store        TokenStore
	navigator    Navigator
	logger       *logging.Logger
	now          func() time.Time

	refreshGroup singleflight.Group

	flightMu      sync.Mutex
	flightCtx     context.Context
	flightCancel  context.CancelFunc
	flightWaiters int
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		panic("auth.NewManager: logger must not be nil")
	}
	if opts.Store == nil {
		panic("auth.NewManager: store must not be nil")
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		http:         httpClient,
		tokenURL:     opts.TokenURL,
		authorizeURL: opts.AuthorizeURL,
		clientID:     opts.ClientID,
		redirectURI:  opts.RedirectURI,
		store:        opts.Store,
		navigator:    opts.Navigator,
		logger:       opts.Logger,
		now:          now,
	}
}

// IsAuthenticated reports whether an access token is stored. Validity is not
// checked.
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.store.Get()
	return ok
}

func (m *Manager) AccessToken() (string, bool) {
	return m.store.Get()
}

// IsExpired decodes the claims of token without verifying its signature. A
// malformed token or a missing exp claim counts as expired.
func (m *Manager) IsExpired(token string) bool {
	return IsExpiredAt(token, m.now())
}

func IsExpiredAt(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.UnixMilli() < now.UnixMilli()
}

// ExchangeCode trades an authorization code for a token pair and stores it.
// Any failure clears the stored tokens and returns an error wrapping
// ErrExchangeFailed; navigation is left to the caller.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (tokens.Pair, error) {
	resp, err := m.postToken(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {m.redirectURI},
		"client_id":    {m.clientID},
	})
	if err == nil {
		err = m.store.Save(resp.IDToken, resp.RefreshToken)
	}
	if err != nil {
		m.logger.Warn("authorization code exchange failed", logging.Field("error", err))
		m.clear()
		return tokens.Pair{}, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	m.logger.Info("authorization code exchanged")
	return tokens.Pair{AccessToken: resp.IDToken, RefreshToken: resp.RefreshToken}, nil
}

// Refresh exchanges the stored refresh token for a new pair and returns the
// new access token. Without a refresh token it returns false and makes no
// network call. A rejected or failed exchange clears the stored tokens.
// Concurrent callers share one in-flight exchange, which keeps running while
// at least one of them waits; when ctx ends first Refresh returns false and
// callers must check ctx before treating that as a failure.
func (m *Manager) Refresh(ctx context.Context) (string, bool) {
	refreshToken, ok := m.store.GetRefresh()
	if !ok {
		m.logger.Debug("refresh skipped", logging.Field("error", ErrNoRefreshToken))
		return "", false
	}

	flight := m.joinRefresh()
	defer m.leaveRefresh()
	for {
		ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
			return m.refresh(flight, refreshToken)
		})
		select {
		case <-ctx.Done():
			return "", false
		case result := <-ch:
			if errors.Is(result.Err, errRefreshAbandoned) && ctx.Err() == nil {
				// joined an exchange its previous callers had given up on
				continue
			}
			if result.Err != nil {
				return "", false
			}
			return result.Val.(string), true
		}
	}
}

// joinRefresh returns the context of the shared exchange. It stays live
// until the last waiter leaves.
func (m *Manager) joinRefresh() context.Context {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()
	if m.flightCtx == nil {
		m.flightCtx, m.flightCancel = context.WithCancel(context.Background())
	}
	m.flightWaiters++
	return m.flightCtx
}

func (m *Manager) leaveRefresh() {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()
	m.flightWaiters--
	if m.flightWaiters == 0 {
		m.flightCancel()
		m.flightCtx, m.flightCancel = nil, nil
	}
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (string, error) {
	resp, err := m.postToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"redirect_uri":  {m.redirectURI},
		"client_id":     {m.clientID},
	})
	if err != nil && ctx.Err() != nil {
		m.logger.Debug("token refresh abandoned", logging.Field("error", err))
		return "", errRefreshAbandoned
	}
	if err == nil {
		err = m.store.Save(resp.IDToken, resp.RefreshToken)
	}
	if err != nil {
		m.logger.Warn("token refresh failed", logging.Field("error", err))
		m.clear()
		return "", err
	}
	m.logger.Info("access token refreshed")
	return resp.IDToken, nil
}

func (m *Manager) postToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return tokenResponse{}, err
	}
	defer resp.Body.Close()
	m.logger.Debugf("POST %s -> %s (%s)", m.tokenURL, resp.Status, form.Get("grant_type"))

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.logger.Debug("token endpoint rejected request",
			logging.Field("status", resp.Status),
			logging.Field("response", logging.FormatHTTPPayload(data)),
		)
		return tokenResponse{}, fmt.Errorf("token endpoint: %s", resp.Status)
	}
	var decoded tokenResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	return decoded, nil
}

// AuthorizeURL is the login page of the authority for this client.
func (m *Manager) AuthorizeURL() string {
	query := url.Values{
		"client_id":     {m.clientID},
		"response_type": {"code"},
		"redirect_uri":  {m.redirectURI},
		"scope":         {Scope},
	}
	return m.authorizeURL + "?" + query.Encode()
}

// ForceReauthenticate clears the tokens and sends the user agent to the
// authorization endpoint. Callers treat it as terminal for the current page.
// Once ctx has ended it does nothing and returns the cancellation cause.
func (m *Manager) ForceReauthenticate(ctx context.Context) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	m.clear()
	target := m.AuthorizeURL()
	m.logger.Info("re-authentication required")
	if m.navigator == nil {
		return nil
	}
	return m.navigator.Navigate(ctx, target)
}

func (m *Manager) Logout() error {
	return m.store.Clear()
}

func (m *Manager) clear() {
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clear tokens failed", logging.Field("error", err))
	}
}
