package terminal

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"place-client/internal/config"
	"place-client/internal/logging"
	"place-client/internal/notify"
	"place-client/internal/runtime"
)

const stopTimeout = 5 * time.Second

// Run shows the room in a full-screen terminal program until the user quits
// or ctx ends. Log lines are shown in the program instead of the terminal.
func Run(ctx context.Context, opts config.Options, logger *logging.Logger) error {
	if logger == nil {
		panic("terminal.Run: logger must not be nil")
	}
	bridge := NewRenderer()
	unsubscribe := logger.Subscribe(func(event logging.Event) {
		bridge.Log(logging.FormatEventANSI(event))
	})
	defer unsubscribe()
	logger.SetTerminalOutputEnabled(false)
	defer logger.SetTerminalOutputEnabled(true)

	service, err := runtime.NewServiceWithHooks(opts, logger, runtime.StartHooks{
		Renderer:   bridge,
		Notifier:   notify.Fanout{bridge, notify.LogSink{Logger: logger}},
		Out:        io.Discard,
		OnNavigate: bridge.Navigate,
		OnStatus:   bridge.Status,
	})
	if err != nil {
		return err
	}

	m := newModel(service.Room(), bridge)
	program := tea.NewProgram(m, tea.WithAltScreen())
	controller := runtime.NewController(ctx, logger)
	if err := controller.Start(service, func(runErr error) {
		program.Send(runDoneMsg{err: runErr})
	}); err != nil {
		return err
	}
	stopQuit := context.AfterFunc(ctx, program.Quit)
	defer stopQuit()

	result, runErr := program.Run()
	if !controller.StopAndWait(stopTimeout) {
		logger.Warn("client did not stop in time", logging.Field("timeout", stopTimeout.String()))
	}
	if runErr != nil {
		return fmt.Errorf("terminal ui: %w", runErr)
	}
	if final, ok := result.(*model); ok && final.exitErr != nil {
		return final.exitErr
	}
	return nil
}
