package watcher

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperbase/backend/features/document"
	"paperbase/backend/internal/middleware"
)

// Ingestor runs the pipeline for a newly discovered object and reports
// whether a document row already claims it.
type Ingestor interface {
	ProcessObject(ctx context.Context, objectName string) (string, error)
	ExistsByLocator(ctx context.Context, objectName string) (*document.Document, bool, error)
}

// ObjectLister enumerates the bucket.
type ObjectLister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocatorLister reads known document locators for the reseed.
type LocatorLister interface {
	ListLocators(ctx context.Context, prefix string) ([]string, error)
}

// Watcher polls the bucket on an interval and ingests PDFs it has not seen.
// The processed set suppresses rework across ticks and lets the webhook
// trigger claim an object before the next scan reaches it.
type Watcher struct {
	ingestor Ingestor
	store    ObjectLister
	locators LocatorLister
	interval time.Duration

	mu        sync.Mutex
	processed map[string]struct{}

	stop chan struct{}
	done chan struct{}
}

func New(ingestor Ingestor, store ObjectLister, locators LocatorLister, interval time.Duration) *Watcher {
	return &Watcher{
		ingestor:  ingestor,
		store:     store,
		locators:  locators,
		interval:  interval,
		processed: make(map[string]struct{}),
	}
}

// Start reseeds the processed set from the database and spawns the poll
// goroutine. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	stop, done := w.stop, w.done
	w.mu.Unlock()

	w.reseed(ctx)

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		slog.Info("watcher started", "interval", w.interval)
		for {
			select {
			case <-stop:
				slog.Info("watcher stopped")
				return
			case <-ticker.C:
				tickCtx := middleware.WithCorrelationID(context.Background(), uuid.New().String())
				w.tick(tickCtx)
			}
		}
	}()
}

// Stop signals the poll goroutine and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// reseed marks every object already tracked by the database as processed,
// so a restart does not re-ingest the whole bucket.
func (w *Watcher) reseed(ctx context.Context) {
	locators, err := w.locators.ListLocators(ctx, "minio://")
	if err != nil {
		slog.Error("watcher reseed failed, starting with empty set", "error", err)
		return
	}

	w.mu.Lock()
	for _, locator := range locators {
		w.processed[path.Base(locator)] = struct{}{}
	}
	count := len(w.processed)
	w.mu.Unlock()

	slog.Info("watcher reseeded", "known_objects", count)
}

func (w *Watcher) tick(ctx context.Context) {
	objects, err := w.store.List(ctx, "")
	if err != nil {
		slog.ErrorContext(ctx, "watcher scan failed", "error", err)
		return
	}

	for _, name := range objects {
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			continue
		}
		if w.IsProcessed(name) {
			continue
		}

		// Another trigger may have ingested it between ticks; trust the
		// database over the in-memory set.
		_, exists, err := w.ingestor.ExistsByLocator(ctx, name)
		if err != nil {
			slog.ErrorContext(ctx, "watcher locator check failed", "object", name, "error", err)
			continue
		}
		if exists {
			w.MarkProcessed(name)
			continue
		}

		slog.InfoContext(ctx, "watcher found new object", "object", name)
		if _, err := w.ingestor.ProcessObject(ctx, name); err != nil {
			slog.ErrorContext(ctx, "watcher ingest failed", "object", name, "error", err)
			continue
		}
		w.MarkProcessed(name)
	}
}

// ForceCheck runs one scan immediately on the caller's goroutine.
func (w *Watcher) ForceCheck(ctx context.Context) {
	w.tick(ctx)
}

type Status struct {
	Running         bool    `json:"running"`
	IntervalSeconds float64 `json:"interval_seconds"`
	ProcessedCount  int     `json:"processed_count"`
}

func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Running:         w.stop != nil,
		IntervalSeconds: w.interval.Seconds(),
		ProcessedCount:  len(w.processed),
	}
}

func (w *Watcher) IsProcessed(objectName string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.processed[objectName]
	return ok
}

func (w *Watcher) MarkProcessed(objectName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processed[objectName] = struct{}{}
}

func (w *Watcher) Unmark(objectName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.processed, objectName)
}
