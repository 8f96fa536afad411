package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the reloader waits after the last change
const DefaultDebounce = 500 * time.Millisecond

// ErrNothingToWatch is returned when none of the reload sources exist
var ErrNothingToWatch = errors.New("no reload sources to watch")

// Reloadable rebuilds its state from disk
type Reloadable interface {
	Reload(ctx context.Context) error
}

// Reloader watches the policy file and host script directory and triggers
// a reload once changes settle.
type Reloader struct {
	watcher  *fsnotify.Watcher
	target   Reloadable
	logger   *zap.Logger
	debounce time.Duration

	files map[string]bool // watched files, matched by name
	dirs  []string        // watched directories, any change counts
}

// NewReloader creates a watcher for policyFile and scriptDir. Either may be
// empty. The policy file's directory is watched rather than the file so
// that editors replacing the file by rename are noticed.
func NewReloader(target Reloadable, logger *zap.Logger, policyFile, scriptDir string) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reloader{
		target:   target,
		logger:   logger.Named("reload"),
		debounce: DefaultDebounce,
		files:    make(map[string]bool),
	}

	var watch []string
	if policyFile != "" {
		if abs, err := filepath.Abs(policyFile); err == nil {
			if _, err := os.Stat(abs); err == nil {
				r.files[abs] = true
				watch = append(watch, filepath.Dir(abs))
			}
		}
	}
	if scriptDir != "" {
		if abs, err := filepath.Abs(scriptDir); err == nil {
			if info, err := os.Stat(abs); err == nil && info.IsDir() {
				r.dirs = append(r.dirs, abs)
				watch = append(watch, abs)
			}
		}
	}
	if len(watch) == 0 {
		return nil, ErrNothingToWatch
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	seen := make(map[string]bool)
	for _, p := range watch {
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := watcher.Add(p); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", p, err)
		}
	}
	r.watcher = watcher
	return r, nil
}

// Run watches for changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) {
	defer r.watcher.Close()

	var (
		mu       sync.Mutex
		debounce *time.Timer
		wg       sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		if debounce != nil && debounce.Stop() {
			wg.Done()
		}
		mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !r.relevant(event) {
				continue
			}
			mu.Lock()
			if debounce != nil && debounce.Stop() {
				wg.Done()
			}
			wg.Add(1)
			debounce = time.AfterFunc(r.debounce, func() {
				defer wg.Done()
				if err := r.target.Reload(ctx); err != nil {
					r.logger.Error("hot-reload failed", zap.Error(err))
					return
				}
				r.logger.Info("hot-reload: sandbox pool replaced", zap.String("trigger", event.Name))
			})
			mu.Unlock()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	if r.files[name] {
		return true
	}
	for _, dir := range r.dirs {
		if strings.HasPrefix(name, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
