package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/nanato/wp-github-updates/pkg/updates"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	settingsDoc     = "settings"
	repositoriesDoc = "repositories"
	logsDoc         = "logs"
)

type fsRepositories struct {
	Items []updates.Registration `firestore:"items"`
}

type fsLogs struct {
	Entries []updates.LogEntry `firestore:"entries"`
}

// Firestore stores each kind of data as one document of the "<prefix>-settings" collection.
type Firestore struct {
	db     *firestore.Client
	prefix string
}

func NewFirestore(db *firestore.Client, prefix string) *Firestore {
	return &Firestore{db: db, prefix: prefix}
}

func (s *Firestore) doc(name string) *firestore.DocumentRef {
	return s.db.Collection(s.prefix + "-settings").Doc(name)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *Firestore) Settings(ctx context.Context) (*updates.Settings, error) {
	settings := &updates.Settings{}
	snap, err := s.doc(settingsDoc).Get(ctx)
	if isNotFound(err) {
		return withDefaults(settings), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if err := snap.DataTo(settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return withDefaults(settings), nil
}

func (s *Firestore) SaveSettings(ctx context.Context, settings *updates.Settings) error {
	_, err := s.doc(settingsDoc).Set(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func getRepositories(snap *firestore.DocumentSnapshot, err error) (*fsRepositories, error) {
	data := &fsRepositories{}
	if isNotFound(err) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repositories: %w", err)
	}
	if err := snap.DataTo(data); err != nil {
		return nil, fmt.Errorf("failed to decode repositories: %w", err)
	}
	return data, nil
}

func (s *Firestore) Repositories(ctx context.Context) ([]updates.Registration, error) {
	data, err := getRepositories(s.doc(repositoriesDoc).Get(ctx))
	if err != nil {
		return nil, err
	}
	return data.Items, nil
}

func (s *Firestore) AddRepository(ctx context.Context, reg *updates.Registration) error {
	if err := ValidateRegistration(reg); err != nil {
		return err
	}
	ref := s.doc(repositoriesDoc)
	return s.db.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		data, err := getRepositories(tx.Get(ref))
		if err != nil {
			return err
		}
		data.Items = append(data.Items, *reg)
		return tx.Set(ref, data)
	})
}

func (s *Firestore) RemoveRepository(ctx context.Context, index int) (*updates.Registration, error) {
	ref := s.doc(repositoriesDoc)
	var removed *updates.Registration
	err := s.db.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		data, err := getRepositories(tx.Get(ref))
		if err != nil {
			return err
		}
		regs, reg, err := removeAt(data.Items, index)
		if err != nil {
			return err
		}
		removed = reg
		return tx.Set(ref, &fsRepositories{Items: regs})
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func getLogs(snap *firestore.DocumentSnapshot, err error) (*fsLogs, error) {
	data := &fsLogs{}
	if isNotFound(err) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	if err := snap.DataTo(data); err != nil {
		return nil, fmt.Errorf("failed to decode logs: %w", err)
	}
	return data, nil
}

func (s *Firestore) AppendLog(ctx context.Context, entry *updates.LogEntry) error {
	ref := s.doc(logsDoc)
	return s.db.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		data, err := getLogs(tx.Get(ref))
		if err != nil {
			return err
		}
		return tx.Set(ref, &fsLogs{Entries: prependLog(data.Entries, entry)})
	})
}

func (s *Firestore) Logs(ctx context.Context, limit int) ([]updates.LogEntry, error) {
	data, err := getLogs(s.doc(logsDoc).Get(ctx))
	if err != nil {
		return nil, err
	}
	return limitLogs(data.Entries, limit), nil
}

func (s *Firestore) ClearLogs(ctx context.Context) error {
	_, err := s.doc(logsDoc).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	return nil
}

func (s *Firestore) Close() error {
	return s.db.Close()
}
