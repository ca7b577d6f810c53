package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kubepilot/kubepilot/internal/logging"
)

// PromptCallback is called when the system prompt override file is
// successfully reloaded. If the callback returns an error it is logged and
// the watcher keeps watching with the previous prompt.
type PromptCallback func(prompt string) error

// PromptWatcherConfig holds configuration for the PromptWatcher.
type PromptWatcherConfig struct {
	// FilePath is the path to the prompt file to watch
	FilePath string

	// DebounceMillis is the debounce period in milliseconds.
	// Multiple file change events within this period are coalesced.
	// Default: 500ms.
	DebounceMillis int
}

// PromptWatcher watches a system prompt override file and triggers reload
// callbacks with debouncing. An unreadable or empty file during reload is
// logged and skipped; the previous prompt stays in effect.
type PromptWatcher struct {
	config   PromptWatcherConfig
	callback PromptCallback
	cancel   context.CancelFunc
	stopped  chan struct{}
	ready    chan struct{}
	logger   *logging.Logger
	mu       sync.Mutex

	debounceTimer *time.Timer
}

// NewPromptWatcher creates a new watcher for the given prompt file.
func NewPromptWatcher(cfg PromptWatcherConfig, callback PromptCallback) (*PromptWatcher, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if cfg.DebounceMillis == 0 {
		cfg.DebounceMillis = 500
	}

	return &PromptWatcher{
		config:   cfg,
		callback: callback,
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
		logger:   logging.GetLogger("config.promptwatch"),
	}, nil
}

// LoadPromptFile reads a prompt file and returns its trimmed contents.
// Returns an error if the file cannot be read or is empty.
func LoadPromptFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %q: %w", path, err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %q is empty", path)
	}
	return prompt, nil
}

// Start loads the initial prompt, invokes the callback, and begins watching
// for file changes. Returns once the underlying watcher is initialized.
func (w *PromptWatcher) Start(ctx context.Context) error {
	prompt, err := LoadPromptFile(w.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load initial prompt: %w", err)
	}

	if err := w.callback(prompt); err != nil {
		return fmt.Errorf("initial prompt callback failed: %w", err)
	}

	w.logger.Info("Loaded system prompt override from %s (%d bytes)", w.config.FilePath, len(prompt))

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}

	return nil
}

// Stop cancels the watch loop and waits for it to exit.
func (w *PromptWatcher) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name implements the lifecycle.Component interface.
func (w *PromptWatcher) Name() string {
	return "prompt-watcher"
}

// signalReady safely closes the ready channel exactly once
func (w *PromptWatcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

// watchLoop is the main file watching loop
func (w *PromptWatcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.FilePath); err != nil {
		w.logger.Error("failed to watch file %s: %v", w.config.FilePath, err)
		return
	}

	w.logger.Debug("watching %s for changes (debounce: %dms)", w.config.FilePath, w.config.DebounceMillis)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// Rename/Remove happen on atomic writes; the inode changed and
			// the watch must be re-added before the reload.
			relevant := event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
			if !relevant {
				continue
			}
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.config.FilePath); err != nil {
					w.logger.Warn("failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error: %v", err)
		}
	}
}

// scheduleReload debounces reloads by resetting a timer on each event.
func (w *PromptWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(time.Duration(w.config.DebounceMillis)*time.Millisecond, func() {
		prompt, err := LoadPromptFile(w.config.FilePath)
		if err != nil {
			w.logger.Warn("prompt reload skipped: %v", err)
			return
		}
		if err := w.callback(prompt); err != nil {
			w.logger.Warn("prompt reload callback failed: %v", err)
			return
		}
		w.logger.Info("Reloaded system prompt override from %s", w.config.FilePath)
	})
}
