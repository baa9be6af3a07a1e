package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"place-client/internal/config"
	"place-client/internal/logging"
	"place-client/internal/runtime"
	"place-client/internal/ui/terminal"
)

var BuildVersion = "dev"

const (
	runErrorExitCode   = 1
	usageErrorExitCode = 2
)

func main() {
	rootCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	opts, command, err := config.ParseOptions(os.Args[1:])
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(usageErrorExitCode)
	}

	logger := logging.New(opts.Debug)
	if err := logger.EnableFilePersistence(logging.FileOptions{Scope: logScope(command, opts)}); err != nil {
		logger.Warn("failed to enable file log persistence", logging.Field("error", err))
	}
	logger.Info("starting place client", logging.Field("version", BuildVersion), logging.Field("command", command))

	code := run(rootCtx, command, opts, logger)
	_ = logger.Close()
	stopSignals()
	os.Exit(code)
}

func run(ctx context.Context, command string, opts config.Options, logger *logging.Logger) int {
	if command == config.CommandLogout {
		service, err := runtime.NewService(opts, logger)
		if err == nil {
			err = service.Logout()
		}
		return exitCode(logger, err)
	}

	lock, lockedByOther, err := acquireInstanceLock()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize single-instance lock:", err)
		return usageErrorExitCode
	}
	if lockedByOther {
		fmt.Fprintln(os.Stderr, "Another place client is already running.")
		return runErrorExitCode
	}
	defer func() {
		_ = lock.Release()
	}()

	switch {
	case command == config.CommandLogin:
		service, err := runtime.NewService(opts, logger)
		if err == nil {
			err = service.Login(ctx)
		}
		return exitCode(logger, err)
	case opts.Headless:
		service, err := runtime.NewService(opts, logger)
		if err == nil {
			err = service.RunContext(ctx)
		}
		return exitCode(logger, err)
	default:
		return exitCode(logger, terminal.Run(ctx, opts, logger))
	}
}

func exitCode(logger *logging.Logger, err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	logger.Error("place client stopped", logging.Field("error", err))
	return runErrorExitCode
}

// logScope names the log files of a run after its room; login and logout
// runs get their own files.
func logScope(command string, opts config.Options) string {
	if command == config.CommandRun {
		return config.RoomSlugFromPath(opts.Room)
	}
	return command
}
