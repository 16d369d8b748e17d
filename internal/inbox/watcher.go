// Package inbox watches a drop directory and feeds settled files to the pipeline.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/nexus/internal/checksum"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/pipeline"
)

// DefaultSettle is how long a file must stay quiet before it is processed.
const DefaultSettle = 500 * time.Millisecond

// Processor runs a file through ingestion. *pipeline.Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, path string, opts ...pipeline.ProcessOption) (*models.Document, error)
}

// Watcher processes files dropped into a single directory.
//
// A file is handed to the Processor once it has seen no Create or Write event
// for the settle period. Content already processed during this watcher's
// lifetime, identified by checksum, is skipped. Subdirectories and hidden
// files are ignored.
type Watcher struct {
	dir    string
	settle time.Duration
	proc   Processor
	logger *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher for dir.
func New(dir string, proc Processor, opts ...Option) *Watcher {
	w := &Watcher{
		dir:    dir,
		settle: DefaultSettle,
		proc:   proc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type settled struct {
	path string
	gen  uint64
}

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("inbox: %s is not a directory", w.dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}

	w.logger.Info("inbox: started", slog.String("dir", w.dir), slog.Duration("settle", w.settle))

	pending := make(map[string]entry)
	seen := make(map[string]struct{})
	ready := make(chan settled, 64)
	var gen uint64

	schedule := func(path string) {
		if e, ok := pending[path]; ok {
			e.timer.Stop()
		}
		gen++
		s := settled{path: path, gen: gen}
		pending[path] = entry{gen: gen, timer: time.AfterFunc(w.settle, func() {
			select {
			case ready <- s:
			case <-ctx.Done():
			}
		})}
	}
	cancel := func(path string) {
		if e, ok := pending[path]; ok {
			e.timer.Stop()
			delete(pending, path)
		}
	}

	for {
		select {
		case <-ctx.Done():
			for _, e := range pending {
				e.timer.Stop()
			}
			w.logger.Info("inbox: stopped")
			return nil

		case s := <-ready:
			// Superseded by a later event or cancelled.
			if e, ok := pending[s.path]; !ok || e.gen != s.gen {
				continue
			}
			delete(pending, s.path)
			w.handle(ctx, s.path, seen)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(ev.Name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				cancel(ev.Name)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string, seen map[string]struct{}) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	sum, _, err := checksum.File(path)
	if err != nil {
		w.logger.Warn("inbox: checksum failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if _, dup := seen[sum]; dup {
		w.logger.Debug("inbox: duplicate content skipped", slog.String("path", path))
		return
	}

	doc, err := w.proc.Process(ctx, path)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Warn("inbox: process failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}
	seen[sum] = struct{}{}
	w.logger.Info("inbox: processed",
		slog.String("path", path),
		slog.String("id", doc.ID.String()),
		slog.String("department", string(doc.Department)))
}
