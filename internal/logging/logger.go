package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Logger fans structured events out to the terminal, the persistent file
// sink and any in-process subscribers (the terminal UI status line).
type Logger struct {
	debugEnabled atomic.Bool
	terminalOut  atomic.Bool
	pretty       bool
	out          io.Writer

	mu          sync.RWMutex
	fileSink    *fileSink
	nextID      int
	subscribers map[int]func(Event)
}

type Event struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Fields  map[string]any
}

func New(debug bool) *Logger {
	logger := &Logger{
		pretty:      shouldPrettyPrint(),
		out:         os.Stderr,
		subscribers: map[int]func(Event){},
	}
	logger.debugEnabled.Store(debug)
	logger.terminalOut.Store(true)
	return logger
}

func Field(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

func (l *Logger) SetDebugEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.debugEnabled.Store(enabled)
}

func (l *Logger) SetTerminalOutputEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.terminalOut.Store(enabled)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Debug events always reach the file sink; terminal and subscribers only see
// them when debug output is enabled.
func (l *Logger) Debug(msg string, fields ...slog.Attr) {
	if l == nil {
		return
	}
	l.log(slog.LevelDebug, msg, fields, l.debugEnabled.Load())
}

func (l *Logger) Info(msg string, fields ...slog.Attr) {
	if l == nil {
		return
	}
	l.log(slog.LevelInfo, msg, fields, true)
}

func (l *Logger) Warn(msg string, fields ...slog.Attr) {
	if l == nil {
		return
	}
	l.log(slog.LevelWarn, msg, fields, true)
}

func (l *Logger) Error(msg string, fields ...slog.Attr) {
	if l == nil {
		return
	}
	l.log(slog.LevelError, msg, fields, true)
}

// EnableFilePersistence mirrors every event into rotating JSONL files.
func (l *Logger) EnableFilePersistence(opts FileOptions) error {
	if l == nil {
		return nil
	}
	sink, err := newFileSink(opts, time.Now())
	if err != nil {
		return err
	}
	l.mu.Lock()
	old := l.fileSink
	l.fileSink = sink
	l.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	sink := l.fileSink
	l.fileSink = nil
	l.mu.Unlock()
	return sink.Close()
}

// Subscribe registers fn for every published event and returns its
// unsubscribe function.
func (l *Logger) Subscribe(fn func(Event)) func() {
	if l == nil {
		panic("logging.Logger.Subscribe: logger must not be nil")
	}
	if fn == nil {
		panic("logging.Logger.Subscribe: callback must not be nil")
	}
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subscribers[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.subscribers, id)
		l.mu.Unlock()
	}
}

func (l *Logger) log(level slog.Level, msg string, attrs []slog.Attr, publish bool) {
	event := Event{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Fields:  attrsToMap(attrs),
	}

	l.mu.RLock()
	sink := l.fileSink
	var callbacks []func(Event)
	if publish {
		callbacks = make([]func(Event), 0, len(l.subscribers))
		for _, cb := range l.subscribers {
			callbacks = append(callbacks, cb)
		}
	}
	l.mu.RUnlock()

	_ = sink.WriteEvent(event)
	if !publish {
		return
	}
	if l.terminalOut.Load() {
		if l.pretty {
			_, _ = io.WriteString(l.out, FormatEventANSI(event))
		} else {
			_, _ = io.WriteString(l.out, FormatEventLine(event))
		}
	}
	for _, cb := range callbacks {
		cb(event)
	}
}

func attrsToMap(attrs []slog.Attr) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	values := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		if attr.Key == "" {
			continue
		}
		values[attr.Key] = resolveValue(attr.Value)
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func resolveValue(value slog.Value) any {
	value = value.Resolve()
	if value.Kind() != slog.KindGroup {
		return value.Any()
	}
	group := map[string]any{}
	for _, attr := range value.Group() {
		if attr.Key != "" {
			group[attr.Key] = resolveValue(attr.Value)
		}
	}
	return group
}
