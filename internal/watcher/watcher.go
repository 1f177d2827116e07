// Package watcher reloads the configuration file when it changes on disk.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/signifo/designgen/internal/config"
	log "github.com/sirupsen/logrus"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives every successfully loaded configuration.
type ReloadFunc func(*config.Config)

// Watcher watches a single config file. The parent directory is watched so
// atomic replace-on-save is observed.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc

	fs       *fsnotify.Watcher
	lastHash string

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a watcher for path. Call Start to begin watching.
func New(path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("watcher: reload callback is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve config path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	return &Watcher{
		path:     abs,
		debounce: debounce,
		onReload: onReload,
		fs:       fsw,
		lastHash: hashFile(abs),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching and returns immediately.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watcher: failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
	log.Debugf("watching config file %s", w.path)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		}
		if err := w.fs.Close(); err != nil {
			log.Warnf("watcher: close: %v", err)
		}
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warnf("watcher: %v", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	hash := hashFile(w.path)
	if hash == "" {
		log.Warnf("watcher: config file %s is not readable, keeping current configuration", w.path)
		return
	}
	if hash == w.lastHash {
		log.Debug("watcher: config content unchanged, skipping reload")
		return
	}
	cfg, err := config.LoadConfig(w.path)
	if err != nil {
		log.Errorf("watcher: failed to reload config, keeping current configuration: %v", err)
		return
	}
	w.lastHash = hash
	log.Infof("config file %s changed, reloaded", filepath.Base(w.path))
	w.onReload(cfg)
}

func hashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
