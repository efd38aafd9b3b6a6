package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TokenSource supplies the bearer token attached to every request.
// Acquiring and refreshing tokens happens elsewhere.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token. The empty token sends no Authorization header.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

// FileToken serves the contents of a token file and reloads it when the
// file changes. Run must be started for reloads to happen.
type FileToken struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	token string
	err   error
}

// NewFileToken reads path once. The file must exist.
func NewFileToken(path string, logger *slog.Logger) (*FileToken, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("token file: %w", err)
	}
	ft := &FileToken{path: abs, logger: logger}
	if err := ft.reload(); err != nil {
		return nil, err
	}
	return ft, nil
}

// Token returns the last successfully read token.
func (f *FileToken) Token() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.token == "" && f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

// Run watches the token file's directory until ctx is cancelled.
// The directory is watched rather than the file so atomic replacements
// (write temp + rename) are seen.
func (f *FileToken) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create token watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := f.reload(); err != nil {
				f.logger.Warn("token reload failed, keeping previous token", "path", f.path, "error", err)
				continue
			}
			f.logger.Debug("token reloaded", "path", f.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("token watcher error", "error", err)
		}
	}
}

func (f *FileToken) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.setErr(fmt.Errorf("read token file: %w", err))
		return err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		err := errors.New("token file is empty")
		f.setErr(err)
		return err
	}

	f.mu.Lock()
	f.token = token
	f.err = nil
	f.mu.Unlock()
	return nil
}

func (f *FileToken) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}
