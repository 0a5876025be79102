// Package watcher indexes the files of a directory and keeps the index in
// step as files are created, changed and removed.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/logger"
)

// Ensure Watcher implements the interface.
var _ driving.Scheduler = (*Watcher)(nil)

// Index fields written for every file.
const (
	FieldPath     = "path"
	FieldName     = "name"
	FieldSize     = "size"
	FieldModified = "modified"
)

// Config configures a watcher.
type Config struct {
	// Dir is the watched directory. Subdirectories are not followed.
	Dir string

	IndexName string

	// IndexContent copies file contents into the index documents.
	IndexContent bool
}

// Watcher mirrors a directory into an index. Each file is one document
// whose id is derived from its path, so rewriting a file replaces its
// document. Unchanged rewrites are detected by content hash and skipped.
type Watcher struct {
	config Config
	mahuta driving.MahutaService

	hashMu sync.Mutex
	hashes map[string]uint64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a watcher.
func New(mahuta driving.MahutaService, config Config) (*Watcher, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("%w: watch directory is required", domain.ErrInvalidArgument)
	}
	if domain.NormalizeIndexName(config.IndexName) == "" {
		return nil, fmt.Errorf("%w: index name is required", domain.ErrInvalidArgument)
	}
	info, err := os.Stat(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidArgument, config.Dir)
	}
	return &Watcher{
		config: config,
		mahuta: mahuta,
		hashes: make(map[string]uint64),
	}, nil
}

// DocumentID returns the document id of the file at a path relative to the
// watched directory.
func DocumentID(rel string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(filepath.ToSlash(rel)))
}

// Scan indexes every file of the directory and returns how many were
// written.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s: %v", domain.ErrTechnical, w.config.Dir, err)
	}
	if err := w.mahuta.CreateIndex(ctx, w.config.IndexName, nil); err != nil {
		return 0, err
	}

	written := 0
	for _, entry := range entries {
		if entry.IsDir() || hidden(entry.Name()) {
			continue
		}
		ok, err := w.put(ctx, filepath.Join(w.config.Dir, entry.Name()))
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	return written, nil
}

// Start scans the directory, then follows changes until ctx is cancelled
// or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("%w: creating watcher: %v", domain.ErrTechnical, err)
	}
	if err := fsw.Add(w.config.Dir); err != nil {
		w.mu.Unlock()
		_ = fsw.Close()
		return fmt.Errorf("%w: watching %s: %v", domain.ErrTechnical, w.config.Dir, err)
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	stopCh, done := w.stopCh, w.done
	w.mu.Unlock()

	defer func() {
		_ = fsw.Close()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(done)
	}()

	n, err := w.Scan(ctx)
	if err != nil {
		return err
	}
	logger.Info("Watching %s: %d files indexed in %q", w.config.Dir, n, w.config.IndexName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if err := w.handleEvent(ctx, ev); err != nil {
				logger.Warn("watcher: %s %s: %v", ev.Op, ev.Name, err)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: %v", err)
		}
	}
}

// Stop ends a running Start and waits for it to return.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	close(w.stopCh)
	done := w.done
	w.running = false
	w.mu.Unlock()

	<-done
	return nil
}

// handleEvent applies one file system event. Directory and permission
// events are ignored.
func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) error {
	if hidden(filepath.Base(ev.Name)) {
		return nil
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return w.remove(ctx, ev.Name)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			if os.IsNotExist(err) {
				return w.remove(ctx, ev.Name)
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		_, err = w.put(ctx, ev.Name)
		return err
	}
	return nil
}

// put indexes a file unless its content is unchanged since the last put.
func (w *Watcher) put(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("%w: reading %s: %v", domain.ErrTechnical, path, err)
	}
	if len(data) == 0 {
		logger.Debug("skipping empty file %s", path)
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrTechnical, err)
	}

	sum := xxhash.Sum64(data)
	w.hashMu.Lock()
	prev, seen := w.hashes[path]
	w.hashMu.Unlock()
	if seen && prev == sum {
		logger.Debug("unchanged %s", path)
		return false, nil
	}

	rel := w.rel(path)
	_, err = w.mahuta.Index(ctx, domain.IndexingRequest{
		IndexName:  w.config.IndexName,
		DocumentID: DocumentID(rel),
		Fields: domain.Fields{
			FieldPath:     domain.String(filepath.ToSlash(rel)),
			FieldName:     domain.String(filepath.Base(path)),
			FieldSize:     domain.Int(info.Size()),
			FieldModified: domain.Date(info.ModTime()),
		},
		IndexContent: w.config.IndexContent,
		Source:       domain.BytesSource(data),
	})
	if err != nil {
		return false, err
	}

	w.hashMu.Lock()
	w.hashes[path] = sum
	w.hashMu.Unlock()
	logger.Debug("indexed %s", rel)
	return true, nil
}

// remove deindexes a file. Files never indexed are ignored.
func (w *Watcher) remove(ctx context.Context, path string) error {
	w.hashMu.Lock()
	delete(w.hashes, path)
	w.hashMu.Unlock()

	err := w.mahuta.Deindex(ctx, w.config.IndexName, DocumentID(w.rel(path)))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.config.Dir, path)
	if err != nil {
		return path
	}
	return rel
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
