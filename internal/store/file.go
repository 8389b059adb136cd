package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nanato/wp-github-updates/pkg/updates"
	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	Settings     updates.Settings       `yaml:"settings"`
	Repositories []updates.Registration `yaml:"repositories"`
	Logs         []updates.LogEntry     `yaml:"logs"`
}

// File keeps all data in a single YAML document.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create store directory: %w", err)
	}
	return &File{path: path}, nil
}

func (f *File) load() (*fileDocument, error) {
	doc := &fileDocument{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read store: %w", err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("could not parse store %s: %w", f.path, err)
	}
	return doc, nil
}

// save writes the document to a temporary file and renames it over the store file.
func (f *File) save(doc *fileDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("could not encode store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".store-*.yaml")
	if err != nil {
		return fmt.Errorf("could not create temporary store file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not write store: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("could not replace store: %w", err)
	}
	return nil
}

func (f *File) update(fn func(doc *fileDocument) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return f.save(doc)
}

func (f *File) read() (*fileDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) Settings(_ context.Context) (*updates.Settings, error) {
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return withDefaults(&doc.Settings), nil
}

func (f *File) SaveSettings(_ context.Context, settings *updates.Settings) error {
	return f.update(func(doc *fileDocument) error {
		doc.Settings = *settings
		return nil
	})
}

func (f *File) Repositories(_ context.Context) ([]updates.Registration, error) {
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return doc.Repositories, nil
}

func (f *File) AddRepository(_ context.Context, reg *updates.Registration) error {
	if err := ValidateRegistration(reg); err != nil {
		return err
	}
	return f.update(func(doc *fileDocument) error {
		doc.Repositories = append(doc.Repositories, *reg)
		return nil
	})
}

func (f *File) RemoveRepository(_ context.Context, index int) (*updates.Registration, error) {
	var removed *updates.Registration
	err := f.update(func(doc *fileDocument) error {
		regs, reg, err := removeAt(doc.Repositories, index)
		if err != nil {
			return err
		}
		doc.Repositories, removed = regs, reg
		return nil
	})
	return removed, err
}

func (f *File) AppendLog(_ context.Context, entry *updates.LogEntry) error {
	return f.update(func(doc *fileDocument) error {
		doc.Logs = prependLog(doc.Logs, entry)
		return nil
	})
}

func (f *File) Logs(_ context.Context, limit int) ([]updates.LogEntry, error) {
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return limitLogs(doc.Logs, limit), nil
}

func (f *File) ClearLogs(_ context.Context) error {
	return f.update(func(doc *fileDocument) error {
		doc.Logs = nil
		return nil
	})
}

func (f *File) Close() error {
	return nil
}
