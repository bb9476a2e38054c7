// Package aliasfile persists the ordered alias table as YAML and reports
// edits made to the file on disk.
package aliasfile

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/upb/stockbot/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed default_stocks.yaml
var defaultTable []byte

const defaultDebounce = 250 * time.Millisecond

// document is the on-disk layout
type document struct {
	Aliases []models.Alias `yaml:"aliases"`
}

// Store reads and writes one alias file
type Store struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewStore creates a store for path
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, debounce: defaultDebounce, logger: logger}
}

// Path returns the file location
func (s *Store) Path() string {
	return s.path
}

// DefaultAliases returns the bundled alias table
func DefaultAliases() ([]models.Alias, error) {
	return decode(defaultTable)
}

// Load reads the alias table. A missing file is seeded with the bundled table.
func (s *Store) Load() ([]models.Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("alias file missing, seeding defaults", zap.String("path", s.path))
		if err := s.write(defaultTable); err != nil {
			return nil, err
		}
		data = defaultTable
	} else if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}

	aliases, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", s.path, err)
	}
	return aliases, nil
}

// Save replaces the file contents with aliases
func (s *Store) Save(aliases []models.Alias) error {
	data, err := yaml.Marshal(document{Aliases: aliases})
	if err != nil {
		return fmt.Errorf("encode alias file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(data)
}

// write replaces the file through a rename so readers never see a partial file
func (s *Store) write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create alias dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".aliases-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp alias file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write alias file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close alias file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace alias file: %w", err)
	}
	return nil
}

func decode(data []byte) ([]models.Alias, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	aliases := make([]models.Alias, 0, len(doc.Aliases))
	for i, a := range doc.Aliases {
		a = models.NormalizeAlias(a.Name, a.Symbol)
		if a.Name == "" || a.Symbol == "" {
			return nil, fmt.Errorf("alias %d: name and symbol are required", i)
		}
		aliases = append(aliases, a)
	}
	return aliases, nil
}

// Watch calls onChange with the reloaded table whenever the file changes,
// until ctx is cancelled. Unparsable edits are logged and skipped.
func (s *Store) Watch(ctx context.Context, onChange func([]models.Alias)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create alias watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch alias dir: %w", err)
	}

	go s.watchLoop(ctx, watcher, onChange)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func([]models.Alias)) {
	defer watcher.Close()

	var timerMu sync.Mutex
	var timer *time.Timer
	reload := func() {
		aliases, err := s.Load()
		if err != nil {
			s.logger.Warn("alias reload failed", zap.Error(err))
			return
		}
		s.logger.Info("alias file reloaded", zap.Int("aliases", len(aliases)))
		onChange(aliases)
	}
	trigger := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(s.debounce, reload)
	}

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(s.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("alias watcher error", zap.Error(err))
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return
		}
	}
}
