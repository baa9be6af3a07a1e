package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLogFileMaxBytes = 5 * 1024 * 1024
	defaultLogFilesKept    = 20
	defaultLogScope        = "client"
)

var unsafeScopeChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// FileOptions configures on-disk log persistence. Files are named
// <scope>-<start time>-<part>.jsonl and only the newest Keep files of a scope
// survive a rotation.
type FileOptions struct {
	// Dir defaults to DefaultLogDirPath.
	Dir string
	// Scope groups the files of one room (or command).
	Scope    string
	MaxBytes int64
	Keep     int
}

// fileSink writes one JSON object per event. Every record carries the scope
// and a run id so interleaved runs of the same room stay separable.
type fileSink struct {
	mu      sync.Mutex
	opts    FileOptions
	runID   string
	started string
	part    int
	file    *os.File
	size    int64
	closed  bool
}

type fileRecord struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Scope   string         `json:"scope"`
	Run     string         `json:"run"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func DefaultLogDirPath() (string, error) {
	root, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "place-client", "logs"), nil
}

// LogScope turns a room slug or command name into a filename-safe scope.
func LogScope(name string) string {
	scope := unsafeScopeChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	scope = strings.Trim(scope, "-")
	if scope == "" {
		return defaultLogScope
	}
	return scope
}

func newFileSink(opts FileOptions, now time.Time) (*fileSink, error) {
	if opts.Dir == "" {
		dir, err := DefaultLogDirPath()
		if err != nil {
			return nil, err
		}
		opts.Dir = dir
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultLogFileMaxBytes
	}
	if opts.Keep <= 0 {
		opts.Keep = defaultLogFilesKept
	}
	opts.Scope = LogScope(opts.Scope)

	sink := &fileSink{
		opts:    opts,
		runID:   uuid.NewString()[:8],
		started: now.UTC().Format("20060102-150405"),
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if err := sink.rotateLocked(); err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *fileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileSink) WriteEvent(event Event) error {
	if s == nil {
		return nil
	}
	record := fileRecord{
		Time:    event.Time.UTC().Format(time.RFC3339Nano),
		Level:   strings.ToUpper(event.Level.String()),
		Scope:   s.opts.Scope,
		Run:     s.runID,
		Message: event.Message,
	}
	if len(event.Fields) > 0 {
		record.Fields = make(map[string]any, len(event.Fields))
		for key, value := range event.Fields {
			record.Fields[key] = fieldValue(value)
		}
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if s.file == nil || (s.size > 0 && s.size+int64(len(line)) > s.opts.MaxBytes) {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}
	n, err := s.file.Write(line)
	s.size += int64(n)
	return err
}

// rotateLocked opens the next part and prunes old files of the scope.
func (s *fileSink) rotateLocked() error {
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return err
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	s.part++
	name := fmt.Sprintf("%s-%s-%03d.jsonl", s.opts.Scope, s.started, s.part)
	f, err := os.OpenFile(filepath.Join(s.opts.Dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file = f
	s.size = info.Size()
	s.pruneLocked()
	return nil
}

// pruneLocked removes all but the newest Keep files of the scope. Names sort
// by start time then part, so lexical order is age order.
func (s *fileSink) pruneLocked() {
	matches, err := filepath.Glob(filepath.Join(s.opts.Dir, s.opts.Scope+"-[0-9]*.jsonl"))
	if err != nil || len(matches) <= s.opts.Keep {
		return
	}
	slices.Sort(matches)
	for _, path := range matches[:len(matches)-s.opts.Keep] {
		_ = os.Remove(path)
	}
}

func fieldValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case error:
		return v.Error()
	case slog.Level:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return value
}
