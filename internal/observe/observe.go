package observe

import (
	"context"

	"github.com/sirupsen/logrus"
)

type EventKind string

const (
	RequestSent      EventKind = "request_sent"
	ResponseReceived EventKind = "response_received"
	FallbackTaken    EventKind = "fallback_taken"
	FailureRaised    EventKind = "failure_raised"
	ArchiveInspected EventKind = "archive_inspected"
)

type Event struct {
	Kind       EventKind
	Component  string
	URL        string
	StatusCode int
	Message    string
	Err        error
	Fields     map[string]any
}

// Observer is notified at the decision points of the GitHub, download and install pipeline.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

type multi []Observer

func (m multi) Observe(ctx context.Context, e Event) {
	for _, o := range m {
		o.Observe(ctx, e)
	}
}

// Multi fans events out to all non-nil observers.
func Multi(observers ...Observer) Observer {
	ret := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			ret = append(ret, o)
		}
	}
	return ret
}

// Nop discards all events.
var Nop Observer = ObserverFunc(func(context.Context, Event) {})

type logObserver struct {
	log logrus.FieldLogger
}

// Logger writes events to a logrus logger: request/response at debug, fallbacks at warn and
// failures at error level.
func Logger(log logrus.FieldLogger) Observer {
	return &logObserver{log: log}
}

func (l *logObserver) Observe(ctx context.Context, e Event) {
	fields := logrus.Fields{"event": string(e.Kind)}
	if e.Component != "" {
		fields["component"] = e.Component
	}
	if e.URL != "" {
		fields["url"] = e.URL
	}
	if e.StatusCode != 0 {
		fields["status"] = e.StatusCode
	}
	for k, v := range e.Fields {
		fields[k] = v
	}
	entry := l.log.WithFields(fields).WithContext(ctx)
	msg := e.Message
	switch e.Kind {
	case RequestSent, ResponseReceived, ArchiveInspected:
		entry.Debug(msg)
	case FallbackTaken:
		entry.Warn(msg)
	case FailureRaised:
		if e.Err != nil {
			entry = entry.WithError(e.Err)
		}
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
}
