package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"place-client/internal/logging"
)

type serviceFunc func(ctx context.Context) error

func (f serviceFunc) RunContext(ctx context.Context) error { return f(ctx) }

func newControllerLogger() *logging.Logger {
	logger := logging.New(false)
	logger.SetTerminalOutputEnabled(false)
	return logger
}

func blockingService(started chan<- struct{}) Service {
	return serviceFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return context.Cause(ctx)
	})
}

func TestControllerStopEndsRunWithErrStopped(t *testing.T) {
	started := make(chan struct{})
	exited := make(chan error, 1)
	c := NewController(context.Background(), newControllerLogger())
	if err := c.Start(blockingService(started), func(err error) { exited <- err }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started
	if !c.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if err := c.Start(serviceFunc(func(context.Context) error { return nil }), nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if !c.StopAndWait(2 * time.Second) {
		t.Fatal("StopAndWait() timed out")
	}
	if c.IsRunning() {
		t.Fatal("IsRunning() = true after stop")
	}
	// onExit runs before Wait returns
	select {
	case err := <-exited:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("exit error = %v, want ErrStopped", err)
		}
	default:
		t.Fatal("exit hook not called before Wait returned")
	}
	if !errors.Is(c.Err(), ErrStopped) {
		t.Fatalf("Err() = %v, want ErrStopped", c.Err())
	}
}

func TestControllerStopMapsPlainCancellation(t *testing.T) {
	started := make(chan struct{})
	c := NewController(context.Background(), newControllerLogger())
	err := c.Start(serviceFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}), nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started
	if !c.StopAndWait(2*time.Second) || !errors.Is(c.Err(), ErrStopped) {
		t.Fatalf("Err() = %v, want ErrStopped", c.Err())
	}
}

func TestControllerParentCancellationIsNotAStop(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	c := NewController(parent, newControllerLogger())
	if err := c.Start(blockingService(started), nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started
	cancel()
	if !c.Wait(2 * time.Second) {
		t.Fatal("Wait() timed out")
	}
	if err := c.Err(); !errors.Is(err, context.Canceled) || errors.Is(err, ErrStopped) {
		t.Fatalf("Err() = %v, want context.Canceled", err)
	}
}

func TestControllerReportsServiceErrorAndRestarts(t *testing.T) {
	boom := errors.New("boom")
	exited := make(chan error, 1)
	c := NewController(nil, newControllerLogger())
	if !c.Wait(time.Millisecond) {
		t.Fatal("Wait() before any run should return immediately")
	}
	if err := c.Start(serviceFunc(func(context.Context) error { return boom }), func(err error) { exited <- err }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.Wait(2 * time.Second) {
		t.Fatal("Wait() timed out")
	}
	if err := <-exited; !errors.Is(err, boom) {
		t.Fatalf("exit error = %v, want %v", err, boom)
	}

	if err := c.Start(serviceFunc(func(context.Context) error { return nil }), nil); err != nil {
		t.Fatalf("Start() after a finished run error = %v", err)
	}
	if !c.Wait(2*time.Second) || c.Err() != nil {
		t.Fatalf("second run Err() = %v, want nil", c.Err())
	}
}
