package runtime

import (
	"context"
	"sync"

	"place-client/internal/auth"
)

// pageNavigator ends the current page whenever the user agent is sent to
// the authorization endpoint, the way a browser navigation abandons every
// pending operation of the page.
type pageNavigator struct {
	next auth.Navigator

	mu        sync.Mutex
	cancel    context.CancelCauseFunc
	navigated bool
}

func (p *pageNavigator) Navigate(ctx context.Context, target string) error {
	var err error
	if p.next != nil {
		err = p.next.Navigate(ctx, target)
	}
	p.mu.Lock()
	cancel := p.cancel
	if cancel != nil {
		p.navigated = true
	}
	p.mu.Unlock()
	if cancel != nil {
		cancel(auth.ErrNavigatedAway)
	}
	return err
}

// enter starts a page bound to parent. leave must be called when the page
// ends; it reports whether the page navigated away.
func (p *pageNavigator) enter(parent context.Context) (context.Context, context.CancelCauseFunc, func() bool) {
	ctx, cancel := context.WithCancelCause(parent)
	p.mu.Lock()
	p.cancel = cancel
	p.navigated = false
	p.mu.Unlock()

	leave := func() bool {
		cancel(nil)
		p.mu.Lock()
		defer p.mu.Unlock()
		p.cancel = nil
		return p.navigated
	}
	return ctx, cancel, leave
}
