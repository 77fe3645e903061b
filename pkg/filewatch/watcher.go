// Package filewatch follows a directory with fsnotify and fans changes out to
// pattern subscriptions. bcp uses it to observe state checkpoints, which land
// as renames over the state file.
package filewatch

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"
)

// ChangeType describes the kind of file change observed.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// FileChange records a change to a file in the watched directory.
type FileChange struct {
	Path string
	Type ChangeType
	At   time.Time
}

// FileChangeHandler receives file change notifications.
type FileChangeHandler func(change FileChange)

// Subscription binds a pattern to a handler.
type Subscription struct {
	ID      string
	Pattern string
	Handler FileChangeHandler
}

// FileWatcher tracks changes to one directory.
type FileWatcher struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription

	dir    string
	fs     *fsnotify.Watcher
	logger *slog.Logger
}

// NewFileWatcher creates a watcher that is not attached to the filesystem;
// changes arrive only through Notify.
func NewFileWatcher() *FileWatcher {
	return &FileWatcher{
		subscriptions: make(map[string]*Subscription),
		logger:        slog.Default(),
	}
}

// WatchDir creates a watcher attached to dir. Call Run to deliver events.
func WatchDir(dir string, logger *slog.Logger) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	fw := NewFileWatcher()
	fw.dir = dir
	fw.fs = fsw
	if logger != nil {
		fw.logger = logger
	}
	return fw, nil
}

// Run delivers filesystem events until ctx is cancelled or the watcher is
// closed.
func (fw *FileWatcher) Run(ctx context.Context) error {
	if fw == nil || fw.fs == nil {
		return fmt.Errorf("watcher is not attached to a directory")
	}
	fw.logger.Debug("watching directory", "dir", fw.dir)

	for {
		select {
		case event, ok := <-fw.fs.Events:
			if !ok {
				return nil
			}
			if change, ok := translate(event); ok {
				fw.Notify(change)
			}

		case err, ok := <-fw.fs.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn("file watcher error", "dir", fw.dir, "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the filesystem watch. Safe to call more than once.
func (fw *FileWatcher) Close() error {
	if fw == nil || fw.fs == nil {
		return nil
	}
	return fw.fs.Close()
}

func translate(event fsnotify.Event) (FileChange, bool) {
	change := FileChange{Path: event.Name, At: time.Now()}
	switch {
	case event.Has(fsnotify.Create):
		change.Type = ChangeCreated
	case event.Has(fsnotify.Write):
		change.Type = ChangeModified
	case event.Has(fsnotify.Remove):
		change.Type = ChangeDeleted
	case event.Has(fsnotify.Rename):
		change.Type = ChangeRenamed
	default:
		return FileChange{}, false
	}
	return change, true
}

// Subscribe registers a file change handler for a glob pattern.
func (fw *FileWatcher) Subscribe(pattern string, handler FileChangeHandler) string {
	if fw == nil || handler == nil {
		return ""
	}
	id := ulid.Make().String()
	sub := &Subscription{
		ID:      id,
		Pattern: strings.TrimSpace(pattern),
		Handler: handler,
	}
	fw.mu.Lock()
	if fw.subscriptions == nil {
		fw.subscriptions = make(map[string]*Subscription)
	}
	fw.subscriptions[id] = sub
	fw.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription.
func (fw *FileWatcher) Unsubscribe(id string) {
	if fw == nil || strings.TrimSpace(id) == "" {
		return
	}
	fw.mu.Lock()
	delete(fw.subscriptions, id)
	fw.mu.Unlock()
}

// Notify publishes a file change event.
func (fw *FileWatcher) Notify(change FileChange) {
	if fw == nil {
		return
	}
	fw.mu.RLock()
	subs := make([]*Subscription, 0, len(fw.subscriptions))
	for _, sub := range fw.subscriptions {
		subs = append(subs, sub)
	}
	fw.mu.RUnlock()

	for _, sub := range subs {
		if sub == nil || sub.Handler == nil {
			continue
		}
		if matchesPattern(sub.Pattern, change.Path) {
			sub.Handler(change)
		}
	}
}

func matchesPattern(pattern, filePath string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	cleanPath := filepath.ToSlash(strings.TrimSpace(filePath))
	cleanPattern := filepath.ToSlash(pattern)
	if ok, _ := path.Match(cleanPattern, cleanPath); ok {
		return true
	}
	if !strings.Contains(cleanPattern, "/") {
		base := path.Base(cleanPath)
		if ok, _ := path.Match(cleanPattern, base); ok {
			return true
		}
	}
	return false
}
