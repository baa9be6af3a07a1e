package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"place-client/internal/logging"
	"place-client/internal/notify"
)

const tokenExpiredMarker = "Token expired"

type Outcome int

const (
	// Delivered: a response is attached. It is 2xx, or the verbatim response
	// of the single retry after a refresh.
	Delivered Outcome = iota
	// Reauthenticating: re-authentication was forced; there is no response.
	Reauthenticating
	// Failed: no response was received. Network failures are reported;
	// a cancelled context is not.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Reauthenticating:
		return "reauthenticating"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode <= 299
}

type Result struct {
	Outcome  Outcome
	Response *Response
	Retried  bool
	Err      error
}

// OK reports a delivered 2xx response.
func (r Result) OK() bool {
	return r.Outcome == Delivered && r.Response.OK()
}

// Request issues an authenticated call to the application API. endpoint is
// relative to the /api prefix. A 401 carrying the token-expired marker is
// refreshed and retried exactly once; any other non-2xx status forces
// re-authentication. Network failures are reported to the notifier.
func (c *PlaceClient) Request(ctx context.Context, endpoint string, opts RequestOptions) Result {
	target := c.endpoints.Origin + normalizeEndpoint(endpoint)

	token, _ := c.session.AccessToken()
	resp, err := c.do(ctx, target, opts, token)
	if err != nil {
		return c.failed(ctx, target, err)
	}
	if resp.OK() {
		return Result{Outcome: Delivered, Response: resp}
	}

	if resp.StatusCode == http.StatusUnauthorized && bytes.Contains(resp.Body, []byte(tokenExpiredMarker)) {
		c.logger.Info("access token expired; refreshing", logging.Field("url", target))
		fresh, ok := c.session.Refresh(ctx)
		if !ok {
			if ctx.Err() != nil {
				return abandoned(ctx)
			}
			return c.reauthenticate(ctx, resp)
		}
		retried, err := c.do(ctx, target, opts, fresh)
		if err != nil {
			return c.failed(ctx, target, err)
		}
		return Result{Outcome: Delivered, Response: retried, Retried: true}
	}
	return c.reauthenticate(ctx, resp)
}

func (c *PlaceClient) do(ctx context.Context, target string, opts RequestOptions, token string) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range opts.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	c.logger.Debugf("%s %s -> %s", method, target, resp.Status)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Status: resp.Status, Header: resp.Header, Body: data}, nil
}

func (c *PlaceClient) reauthenticate(ctx context.Context, resp *Response) Result {
	c.logger.Warn("request rejected; re-authenticating",
		logging.Field("status", resp.Status),
		logging.Field("response", logging.FormatHTTPPayload(resp.Body)),
	)
	statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if err := c.session.ForceReauthenticate(ctx); err != nil {
		c.logger.Warn("force re-authentication failed", logging.Field("error", err))
	}
	return Result{Outcome: Reauthenticating, Err: fmt.Errorf("%w: %w", ErrReauthenticating, statusErr)}
}

func (c *PlaceClient) failed(ctx context.Context, target string, err error) Result {
	if ctx.Err() != nil {
		return abandoned(ctx)
	}
	c.logger.Warn("request failed", logging.Field("url", target), logging.Field("error", err))
	c.notifier.Notify("Error", "API request failed: "+err.Error(), notify.Error)
	return Result{Outcome: Failed, Err: fmt.Errorf("%w: %w", ErrRequestFailed, err)}
}

// abandoned is the result of a call whose context ended first. Nothing is
// reported and no re-authentication happens.
func abandoned(ctx context.Context) Result {
	return Result{Outcome: Failed, Err: context.Cause(ctx)}
}

// normalizeEndpoint maps "rooms/x", "/rooms/x" and "/api/rooms/x" onto
// "/api/rooms/x".
func normalizeEndpoint(endpoint string) string {
	endpoint = "/" + strings.TrimLeft(strings.TrimSpace(endpoint), "/")
	if endpoint == "/api" || strings.HasPrefix(endpoint, "/api/") {
		return endpoint
	}
	return "/api" + endpoint
}
