package tokens

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestStoreSaveGetClear(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "tokens.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := store.Get(); ok {
		t.Fatalf("Get() on empty store reported a token")
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoTokens) {
		t.Fatalf("Load() error = %v, want ErrNoTokens", err)
	}

	if err := store.Save("access-1", "refresh-1"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got, ok := store.Get(); !ok || got != "access-1" {
		t.Fatalf("Get() = %q, %v", got, ok)
	}
	if got, ok := store.GetRefresh(); !ok || got != "refresh-1" {
		t.Fatalf("GetRefresh() = %q, %v", got, ok)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(store.Path())
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Fatalf("token file mode = %o, want 600", perm)
		}
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
	if _, ok := store.GetRefresh(); ok {
		t.Fatalf("GetRefresh() after Clear reported a token")
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := first.Save("a", "r"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	pair, err := second.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if pair != (Pair{AccessToken: "a", RefreshToken: "r"}) {
		t.Fatalf("Load() = %#v", pair)
	}
}

func TestStoreConcurrentSavesNeverTear(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "tokens.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			suffix := string(rune('a' + i))
			if err := store.Save("access-"+suffix, "refresh-"+suffix); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	pair, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if pair.AccessToken[len("access-"):] != pair.RefreshToken[len("refresh-"):] {
		t.Fatalf("torn pair %#v", pair)
	}
}

func TestDefaultPathUsesConfigDir(t *testing.T) {
	root := t.TempDir()
	if runtime.GOOS == "windows" {
		t.Setenv("AppData", root)
	} else {
		t.Setenv("XDG_CONFIG_HOME", root)
	}
	if runtime.GOOS == "darwin" {
		t.Skip("darwin config dir ignores XDG_CONFIG_HOME")
	}
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath() error = %v", err)
	}
	if want := filepath.Join(root, "place-client", "tokens.json"); path != want {
		t.Fatalf("DefaultPath() = %q, want %q", path, want)
	}
}

func TestWatchReportsExternalClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Save("a", "r"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cleared := make(chan struct{})
	var once sync.Once
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- store.Watch(ctx, func(pair Pair) {
			if pair.AccessToken == "" {
				once.Do(func() { close(cleared) })
			}
		})
	}()

	other, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	deadline := time.NewTicker(50 * time.Millisecond)
	defer deadline.Stop()
	for {
		if err := other.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		select {
		case <-cleared:
			cancel()
			if err := <-watchDone; err != nil {
				t.Fatalf("Watch() error = %v", err)
			}
			return
		case <-ctx.Done():
			t.Fatalf("watcher never reported the cleared token file")
		case <-deadline.C:
			// the watcher may not be registered yet; write and clear again
			if err := other.Save("a", "r"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
		}
	}
}

func TestWatchSkipsOwnWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	other, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	seen := make(chan Pair, 256)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- store.Watch(ctx, func(pair Pair) { seen <- pair })
	}()

	// waitFor rewrites the file from the other store until the watcher
	// reports it, so it also covers the watcher not being registered yet.
	var delivered []Pair
	waitFor := func(access string) {
		t.Helper()
		tick := time.NewTicker(50 * time.Millisecond)
		defer tick.Stop()
		if err := other.Save(access, "r"); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		for {
			select {
			case pair := <-seen:
				delivered = append(delivered, pair)
				if pair.AccessToken == access {
					return
				}
			case <-tick.C:
				if err := other.Save(access, "r"); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
			case <-ctx.Done():
				t.Fatalf("watcher never reported %q; delivered %v", access, delivered)
			}
		}
	}

	waitFor("external-1")
	if err := store.Save("own", "r"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	waitFor("external-2")
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	waitFor("external-3")

	cancel()
	if err := <-watchDone; err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	close(seen)
	for pair := range seen {
		delivered = append(delivered, pair)
	}
	for _, pair := range delivered {
		if pair.AccessToken == "own" || pair.AccessToken == "" {
			t.Fatalf("own write delivered: %+v (all: %v)", pair, delivered)
		}
	}
}
