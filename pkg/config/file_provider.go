package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileProvider watches a config file and republishes parsed snapshots to
// subscribers on change. Reload failures keep the last good snapshot.
type FileProvider struct {
	path   string
	logger *slog.Logger

	mu          sync.RWMutex
	current     *Config
	subscribers []chan *Config

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewFileProvider creates a provider watching the specified file. The file
// must parse at startup.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	cfg, err := Load(absPath)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &FileProvider{
		path:    absPath,
		logger:  logger,
		current: cfg,
		watcher: watcher,
		cancel:  cancel,
	}
	go p.watchLoop(ctx)

	return p, nil
}

// Current returns the latest good snapshot.
func (p *FileProvider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Subscribe returns a channel receiving config updates. The current
// snapshot is delivered immediately.
func (p *FileProvider) Subscribe() <-chan *Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan *Config, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.current
	return ch
}

// Close stops the watcher and cleans up resources.
func (p *FileProvider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	const debounce = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, p.reload)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("config watcher error", slog.Any("error", err))
		}
	}
}

func (p *FileProvider) reload() {
	cfg, err := Load(p.path)
	if err != nil {
		p.logger.Error("config reload failed, keeping previous snapshot",
			slog.String("path", p.path),
			slog.Any("error", err))
		return
	}

	p.mu.Lock()
	p.current = cfg
	subscribers := make([]chan *Config, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	p.logger.Info("configuration reloaded", slog.String("path", p.path))

	for _, ch := range subscribers {
		select {
		case ch <- cfg:
		default:
			// Slow consumer, skip.
		}
	}
}
