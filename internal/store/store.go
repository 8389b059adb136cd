package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/nanato/wp-github-updates/pkg/updates"
)

// MaxLogEntries is the number of activity log entries kept, newest first.
const MaxLogEntries = 100

const DefaultLogLevel = "error"

var ErrRepositoryNotFound = errors.New("repository not found")

// Store persists settings, repository registrations and the activity log.
type Store interface {
	Settings(ctx context.Context) (*updates.Settings, error)
	SaveSettings(ctx context.Context, settings *updates.Settings) error

	Repositories(ctx context.Context) ([]updates.Registration, error)
	AddRepository(ctx context.Context, reg *updates.Registration) error
	RemoveRepository(ctx context.Context, index int) (*updates.Registration, error)

	AppendLog(ctx context.Context, entry *updates.LogEntry) error
	Logs(ctx context.Context, limit int) ([]updates.LogEntry, error)
	ClearLogs(ctx context.Context) error

	Close() error
}

var (
	validate     *validator.Validate
	validateInit sync.Once
)

// ValidateRegistration checks the required fields of a registration: themes need a slug,
// plugins the path of their main file.
func ValidateRegistration(reg *updates.Registration) error {
	validateInit.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(reg); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	var fieldErrors validator.ValidationErrors
	if errors.As(e.Err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return fmt.Sprintf("invalid repository: field %s failed on %q", fe.Field(), fe.Tag())
	}
	return fmt.Sprintf("invalid repository: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func withDefaults(s *updates.Settings) *updates.Settings {
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	return s
}

func prependLog(entries []updates.LogEntry, entry *updates.LogEntry) []updates.LogEntry {
	ret := make([]updates.LogEntry, 0, min(len(entries)+1, MaxLogEntries))
	ret = append(ret, *entry)
	ret = append(ret, entries...)
	if len(ret) > MaxLogEntries {
		ret = ret[:MaxLogEntries]
	}
	return ret
}

func limitLogs(entries []updates.LogEntry, limit int) []updates.LogEntry {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]updates.LogEntry(nil), entries...)
}

func removeAt(regs []updates.Registration, index int) ([]updates.Registration, *updates.Registration, error) {
	if index < 0 || index >= len(regs) {
		return nil, nil, fmt.Errorf("%w: index %d", ErrRepositoryNotFound, index)
	}
	removed := regs[index]
	ret := make([]updates.Registration, 0, len(regs)-1)
	ret = append(ret, regs[:index]...)
	ret = append(ret, regs[index+1:]...)
	return ret, &removed, nil
}
