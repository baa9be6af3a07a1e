package tokens

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the current pair (zero when cleared) every time
// another process changes the token file. Changes matching this store's own
// last Save or Clear are skipped. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(Pair)) error {
	if fn == nil {
		panic("tokens.Store.Watch: callback must not be nil")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create token watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch token dir: %w", err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("token watcher: %w", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			pair, err := s.Load()
			if err != nil && !errors.Is(err, ErrNoTokens) {
				continue
			}
			if s.ownWrite(pair) {
				continue
			}
			fn(pair)
		}
	}
}
