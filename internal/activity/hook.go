package activity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nanato/wp-github-updates/pkg/updates"
	"github.com/sirupsen/logrus"
)

type Appender interface {
	AppendLog(ctx context.Context, entry *updates.LogEntry) error
}

// Hook persists log entries at or above a configurable level into the activity log.
type Hook struct {
	appender Appender
	level    atomic.Uint32

	mu        sync.Mutex
	logger    *logrus.Logger
	baseLevel logrus.Level
}

func NewHook(appender Appender, level logrus.Level) *Hook {
	h := &Hook{appender: appender}
	h.SetLevel(level)
	return h
}

// Attach registers the hook on log. The logger level is kept at least as verbose as the
// hook level, since logrus drops entries below its own level before any hook fires.
func (h *Hook) Attach(log *logrus.Logger) {
	h.mu.Lock()
	h.logger = log
	h.baseLevel = log.GetLevel()
	h.mu.Unlock()
	log.AddHook(h)
	h.syncLogger()
}

func (h *Hook) SetLevel(level logrus.Level) {
	h.level.Store(uint32(level))
	h.syncLogger()
}

func (h *Hook) syncLogger() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.logger != nil {
		h.logger.SetLevel(max(h.baseLevel, h.Level()))
	}
}

func (h *Hook) Level() logrus.Level {
	return logrus.Level(h.level.Load())
}

// SetLevelName applies a level name as stored in the settings. Unknown names are rejected.
func (h *Hook) SetLevelName(name string) error {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	h.SetLevel(level)
	return nil
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(e *logrus.Entry) error {
	if e.Level > h.Level() {
		return nil
	}
	ctx := e.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return h.appender.AppendLog(ctx, &updates.LogEntry{
		Timestamp: e.Time.UTC(),
		Level:     levelName(e.Level),
		Message:   e.Message,
		Context:   entryContext(e.Data),
	})
}

func levelName(level logrus.Level) string {
	if level <= logrus.ErrorLevel {
		return "error"
	}
	return level.String()
}

func entryContext(data logrus.Fields) map[string]any {
	if len(data) == 0 {
		return nil
	}
	ret := make(map[string]any, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string, bool, int, int64, float64:
			ret[k] = val
		case error:
			ret[k] = val.Error()
		default:
			ret[k] = fmt.Sprint(val)
		}
	}
	return ret
}
