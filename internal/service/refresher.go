package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Rebuilder rebuilds the knowledge base from a file.
type Rebuilder interface {
	RebuildFromFile(ctx context.Context, path string) (IngestReport, error)
}

// Refresher keeps the knowledge base in sync with a file, on a cron
// schedule and/or whenever the file changes. A failed refresh is logged and
// the previous index keeps serving.
type Refresher struct {
	kb       Rebuilder
	path     string
	schedule string
	watch    bool
	debounce time.Duration
	logger   *zap.Logger

	run     sync.Mutex
	cron    *cron.Cron
	watcher *fsnotify.Watcher
	timer   *time.Timer
	timerMu sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

type RefresherConfig struct {
	Path     string
	Schedule string
	Watch    bool
	Debounce time.Duration
}

func NewRefresher(kb Rebuilder, cfg RefresherConfig, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	path := cfg.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Refresher{
		kb:       kb,
		path:     path,
		schedule: cfg.Schedule,
		watch:    cfg.Watch,
		debounce: cfg.Debounce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Refresh rebuilds now. Concurrent calls run one after another.
func (r *Refresher) Refresh(ctx context.Context) (IngestReport, error) {
	r.run.Lock()
	defer r.run.Unlock()
	report, err := r.kb.RebuildFromFile(ctx, r.path)
	if err != nil {
		r.logger.Error("knowledge refresh failed", zap.String("path", r.path), zap.Error(err))
		return IngestReport{}, err
	}
	return report, nil
}

// Start installs the schedule and the file watch. It does not refresh
// immediately.
func (r *Refresher) Start(ctx context.Context) error {
	if r.schedule != "" {
		r.cron = cron.New()
		if _, err := r.cron.AddFunc(r.schedule, func() { _, _ = r.Refresh(ctx) }); err != nil {
			return fmt.Errorf("invalid rebuild schedule %q: %w", r.schedule, err)
		}
		r.cron.Start()
		r.logger.Info("scheduled knowledge refresh", zap.String("schedule", r.schedule))
	}
	if r.watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		// Watch the directory: editors often replace the file instead of writing it.
		if err := w.Add(filepath.Dir(r.path)); err != nil {
			_ = w.Close()
			return fmt.Errorf("watch %s: %w", filepath.Dir(r.path), err)
		}
		r.watcher = w
		r.wg.Add(1)
		go r.loop(ctx)
		r.logger.Info("watching knowledge file", zap.String("path", r.path))
	}
	return nil
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if r.relevant(ev) {
				r.debounced(ctx)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// relevant reports whether ev changed the knowledge file's content.
func (r *Refresher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != r.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// debounced coalesces bursts of events into one refresh.
func (r *Refresher) debounced(ctx context.Context) {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() { _, _ = r.Refresh(ctx) })
}

// Stop ends the schedule and the watch. Safe to call more than once.
func (r *Refresher) Stop() {
	select {
	case <-r.done:
		return
	default:
		close(r.done)
	}
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
	r.wg.Wait()
	r.timerMu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timerMu.Unlock()
}
