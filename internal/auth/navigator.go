package auth

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	goruntime "runtime"

	"place-client/internal/logging"
)

// Browser opens URLs with the operator's system browser and always prints
// them so a headless operator can copy the link.
type Browser struct {
	Out       io.Writer
	NoBrowser bool
	Logger    *logging.Logger

	open func(string) error
}

func (b *Browser) Navigate(_ context.Context, target string) error {
	if b.Out != nil {
		_, _ = fmt.Fprintf(b.Out, "Open this URL to log in:\n  %s\n", target)
	}
	if b.NoBrowser {
		return nil
	}
	open := b.open
	if open == nil {
		open = openExternalURL
	}
	if err := open(target); err != nil {
		b.Logger.Warn("open browser failed", logging.Field("error", err))
		return err
	}
	return nil
}

func openExternalURL(rawURL string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	return cmd.Start()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, target string) error

func (f NavigatorFunc) Navigate(ctx context.Context, target string) error {
	return f(ctx, target)
}

// Chain runs each navigator in order and returns the first error.
type Chain []Navigator

func (c Chain) Navigate(ctx context.Context, target string) error {
	for _, n := range c {
		if n == nil {
			continue
		}
		if err := n.Navigate(ctx, target); err != nil {
			return err
		}
	}
	return nil
}
