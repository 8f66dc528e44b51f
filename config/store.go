package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current settings and keeps them fresh. Readers call
// Current at cycle start; a background watcher reloads the file when it
// changes on disk, and Reload can be called explicitly.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings Settings
	logger   *slog.Logger
}

// NewStore loads settings from path. A missing file is created with the
// defaults so operators have something to edit.
func NewStore(path string) (*Store, error) {
	settings, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		if saveErr := Save(path, settings); saveErr != nil {
			return nil, saveErr
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	return &Store{
		path:     path,
		settings: settings,
		logger:   slog.Default().With("component", "config"),
	}, nil
}

// Current returns the most recently loaded settings.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the file. On error the previous settings stay in effect.
func (s *Store) Reload() error {
	settings, err := Load(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// Watch reloads the store whenever the backing file changes, until the
// context is canceled. Editors that replace the file (rename-over) are
// handled by watching the parent directory.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("config reload failed, keeping previous settings", "err", err)
					continue
				}
				s.logger.Info("config reloaded", "path", s.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watcher error", "err", err)
			}
		}
	}()
	return nil
}
