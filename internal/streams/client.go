package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"place-client/internal/logging"
)

var ErrAckTimeout = errors.New("subscription acknowledgment timed out")

// Transport is the event channel the protocol runs on.
type Transport interface {
	Emit(event string, payload any) error
	On(event string, fn func(json.RawMessage)) func()
}

type Client struct {
	transport  Transport
	ackTimeout time.Duration
	logger     *logging.Logger

	mu         sync.Mutex
	activeRoom string
}

// New returns a protocol client. ackTimeout bounds the wait for the canvas
// stream to start; zero or less waits until the context ends.
func New(transport Transport, ackTimeout time.Duration, logger *logging.Logger) *Client {
	if transport == nil {
		panic("streams.New: transport must not be nil")
	}
	if logger == nil {
		panic("streams.New: logger must not be nil")
	}
	return &Client{transport: transport, ackTimeout: ackTimeout, logger: logger}
}

// SubscribeToRoom subscribes to the canvas stream of slug and waits for the
// server to report it started, then subscribes to the chat stream without
// waiting. The room is remembered for Resubscribe.
func (c *Client) SubscribeToRoom(ctx context.Context, slug string) error {
	if err := c.subscribeAndWait(ctx, CanvasStreamPath, slug); err != nil {
		return err
	}
	c.mu.Lock()
	c.activeRoom = slug
	c.mu.Unlock()

	if _, err := c.subscribe(ChatStreamPath, slug); err != nil {
		c.logger.Warn("chat subscription failed", logging.Field("room", slug), logging.Field("error", err))
	}
	return nil
}

// ActiveRoom is the last room whose canvas subscription was acknowledged.
func (c *Client) ActiveRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeRoom
}

// Resubscribe restores the active room's streams on a fresh connection.
func (c *Client) Resubscribe(ctx context.Context) error {
	slug := c.ActiveRoom()
	if slug == "" {
		return nil
	}
	c.logger.Info("resubscribing to room", logging.Field("room", slug))
	return c.SubscribeToRoom(ctx, slug)
}

func (c *Client) subscribeAndWait(ctx context.Context, path, slug string) error {
	id := uuid.NewString()
	started := make(chan struct{}, 1)
	// registered before emitting so a fast reply cannot be missed
	off := c.transport.On(MessageEvent, func(payload json.RawMessage) {
		var ack Ack
		if err := json.Unmarshal(payload, &ack); err != nil {
			return
		}
		if ack.ID != id || ack.Result.Type != resultStarted {
			return
		}
		select {
		case started <- struct{}{}:
		default:
		}
	})
	defer off()

	if err := c.emit(id, path, slug); err != nil {
		return err
	}

	var timeout <-chan time.Time
	if c.ackTimeout > 0 {
		timer := time.NewTimer(c.ackTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-started:
		c.logger.Debug("stream started", logging.Field("path", path), logging.Field("room", slug), logging.Field("id", id))
		return nil
	case <-timeout:
		return fmt.Errorf("%w: %s for room %q", ErrAckTimeout, path, slug)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) subscribe(path, slug string) (string, error) {
	id := uuid.NewString()
	return id, c.emit(id, path, slug)
}

func (c *Client) emit(id, path, slug string) error {
	req := Request{
		ID:     id,
		Method: methodSubscription,
		Params: Params{Path: path, Input: Input{JSON: RoomInput{RoomSlug: slug}}},
	}
	if err := c.transport.Emit(MessageEvent, req); err != nil {
		return fmt.Errorf("emit %s subscription: %w", path, err)
	}
	return nil
}

// OnPixelUpdate calls fn for every pixel update of slug. Updates for other
// rooms and malformed payloads are dropped.
func (c *Client) OnPixelUpdate(slug string, fn func(PixelUpdate)) func() {
	if fn == nil {
		panic("streams.Client.OnPixelUpdate: callback must not be nil")
	}
	return c.transport.On(PixelUpdateEvent, func(payload json.RawMessage) {
		update, err := decodePixelUpdate(payload)
		if err != nil {
			c.logger.Debug("ignoring malformed pixel update", logging.Field("error", err))
			return
		}
		if update.RoomSlug != slug {
			return
		}
		fn(update)
	})
}
