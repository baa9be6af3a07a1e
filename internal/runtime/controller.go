package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"place-client/internal/logging"
)

var (
	// ErrStopped is the result of a run ended through Stop.
	ErrStopped        = errors.New("client stopped")
	ErrAlreadyRunning = errors.New("client is already running")
)

// Controller runs one Service at a time in the background and keeps the
// result of the last run. A run ends when the service returns, Stop is
// called or the parent context ends.
type Controller struct {
	parent context.Context
	logger *logging.Logger

	mu     sync.Mutex
	cancel context.CancelCauseFunc
	done   chan struct{}
	err    error
}

func NewController(parent context.Context, logger *logging.Logger) *Controller {
	if logger == nil {
		panic("runtime.NewController: logger must not be nil")
	}
	if parent == nil {
		parent = context.Background()
	}
	return &Controller{parent: parent, logger: logger}
}

// Start launches service. onExit, when set, receives the run's result before
// Wait returns.
func (c *Controller) Start(service Service, onExit func(error)) error {
	if service == nil {
		return errors.New("runtime.Controller.Start: nil service")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runningLocked() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancelCause(c.parent)
	done := make(chan struct{})
	c.cancel, c.done, c.err = cancel, done, nil

	go func() {
		err := service.RunContext(ctx)
		if errors.Is(context.Cause(ctx), ErrStopped) && (err == nil || errors.Is(err, context.Canceled)) {
			err = ErrStopped
		}
		cancel(nil)
		c.logExit(err)

		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		if onExit != nil {
			onExit(err)
		}
		close(done)
	}()
	return nil
}

func (c *Controller) logExit(err error) {
	switch {
	case err == nil:
		c.logger.Info("client exited")
	case errors.Is(err, ErrStopped):
		c.logger.Info("client stopped")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.logger.Debug("client exited on cancellation", logging.Field("error", err))
	default:
		c.logger.Warn("client exited with error", logging.Field("error", err))
	}
}

// Stop asks the current run to end with ErrStopped. It does not wait.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel(ErrStopped)
	}
}

// Wait blocks until the current run has ended, or for at most timeout when
// timeout is positive. It reports whether the run ended.
func (c *Controller) Wait(timeout time.Duration) bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return true
	}
	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (c *Controller) StopAndWait(timeout time.Duration) bool {
	c.Stop()
	return c.Wait(timeout)
}

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningLocked()
}

// Err returns the result of the last finished run.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) runningLocked() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
