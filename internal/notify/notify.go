package notify

import (
	"place-client/internal/logging"
)

type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

// Sink receives user-visible messages. Delivery is fire-and-forget.
type Sink interface {
	Notify(title, message string, kind Kind)
}

type Func func(title, message string, kind Kind)

func (f Func) Notify(title, message string, kind Kind) {
	if f != nil {
		f(title, message, kind)
	}
}

// Fanout delivers every notification to each non-nil sink in order.
type Fanout []Sink

func (f Fanout) Notify(title, message string, kind Kind) {
	for _, sink := range f {
		if sink != nil {
			sink.Notify(title, message, kind)
		}
	}
}

// LogSink writes notifications to the logger; errors are logged at error
// level, everything else at info.
type LogSink struct {
	Logger *logging.Logger
}

func (s LogSink) Notify(title, message string, kind Kind) {
	if kind == Error {
		s.Logger.Error(message, logging.Field("title", title))
		return
	}
	s.Logger.Info(message, logging.Field("title", title), logging.Field("kind", string(kind)))
}

// Discard drops every notification.
var Discard Sink = Func(nil)
