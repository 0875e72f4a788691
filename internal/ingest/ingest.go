// Package ingest watches a drop directory for session plan files. Dropping
// a JSON session payload into the directory creates the session and starts
// its generation pipeline, which lets other tooling feed the scheduler
// without speaking HTTP.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/planora/roadmap/internal/pipeline"
	"github.com/planora/roadmap/internal/store"
	"github.com/planora/roadmap/internal/types"
)

// processedDir is where consumed plan files move to, inside the drop dir.
const processedDir = "processed"

// Config holds watcher configuration. Dir, Store, and Pipeline are required.
type Config struct {
	// Dir is the drop directory to watch for *.json plan files.
	Dir string

	Store    *store.Store
	Pipeline *pipeline.Orchestrator

	// Debounce is how long a file must stay quiet before intake, so a
	// writer streaming the file does not trigger a half-read (default:
	// 500ms).
	Debounce time.Duration

	Logger *log.Logger
}

// Watcher ingests dropped session plan files.
type Watcher struct {
	dir      string
	store    *store.Store
	pipeline *pipeline.Orchestrator
	debounce time.Duration
	logger   *log.Logger

	watcher  *fsnotify.Watcher
	sessions chan string
	done     chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
	timers  map[string]*time.Timer
}

// NewWatcher creates a watcher. Start must be called before events flow.
func NewWatcher(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("drop directory is required")
	}
	if cfg.Store == nil || cfg.Pipeline == nil {
		return nil, fmt.Errorf("store and pipeline are required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		dir:      cfg.Dir,
		store:    cfg.Store,
		pipeline: cfg.Pipeline,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		watcher:  fsw,
		sessions: make(chan string, 16),
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Start begins watching the drop directory. Files already present are
// ingested immediately.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}

	if err := os.MkdirAll(filepath.Join(w.dir, processedDir), 0755); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to create processed directory: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.loop()
	w.mu.Unlock()

	// Catch up on files dropped before the watch started.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read drop directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			w.schedule(filepath.Join(w.dir, e.Name()))
		}
	}
	return nil
}

// Stop stops the watcher and waits for in-flight intake to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	close(w.sessions)
	return nil
}

// Sessions emits the ID of every session created from a dropped file. The
// channel closes on Stop.
func (w *Watcher) Sessions() <-chan string {
	return w.sessions
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if filepath.Dir(event.Name) != filepath.Clean(w.dir) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("ingest: watch error: %v", err)
		}
	}
}

// schedule (re)arms the debounce timer for a path. Every write resets the
// timer; intake runs only after the file has been quiet for the debounce
// window.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingest(path)
	})
}

func (w *Watcher) ingest(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Printf("ingest: failed to read %s: %v", path, err)
		}
		return
	}

	var session types.RoadmapSession
	if err := json.Unmarshal(data, &session); err != nil {
		w.logger.Printf("ingest: %s is not a valid plan file: %v", path, err)
		return
	}
	if session.ID == "" {
		session.ID = types.NewID(types.PrefixSession)
	}
	session.Status = types.StatusDraft

	ctx := context.Background()
	if err := w.store.CreateSession(ctx, &session); err != nil {
		w.logger.Printf("ingest: failed to create session from %s: %v", path, err)
		return
	}

	// Move the consumed file out of the watch so edits to it cannot
	// double-ingest.
	dest := filepath.Join(w.dir, processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.logger.Printf("ingest: failed to archive %s: %v", path, err)
	}

	w.logger.Printf("ingest: created session %s from %s", session.ID, filepath.Base(path))
	if err := w.pipeline.Start(ctx, session.ID); err != nil {
		w.logger.Printf("ingest: failed to start pipeline for %s: %v", session.ID, err)
	}

	select {
	case w.sessions <- session.ID:
	default:
	}
}
