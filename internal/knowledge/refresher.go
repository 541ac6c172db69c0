package knowledge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RefresherConfig configures periodic corpus refresh.
type RefresherConfig struct {
	// Interval between refresh cycles. Default: 30 seconds.
	Interval time.Duration
}

// Refresher keeps the index in sync with a document corpus.
//
// It polls the source on a fixed interval, re-ingests new and changed
// documents, and removes deleted ones. A document whose ingestion fails is
// logged and skipped; the rest of the cycle proceeds. Refresh runs in a
// single goroutine with an explicit Start/Stop lifecycle, so the index is
// mutated from exactly one place.
type Refresher struct {
	index  *Index
	source SourceLister
	config RefresherConfig
	logger *zap.Logger

	mu          sync.RWMutex
	indexed     map[string]time.Time // source id -> modtime as last ingested
	lastRefresh time.Time
	lastError   error
	running     bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefresher creates a refresher for the given index and source.
func NewRefresher(index *Index, source SourceLister, config RefresherConfig, logger *zap.Logger) *Refresher {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		index:   index,
		source:  source,
		config:  config,
		logger:  logger,
		indexed: make(map[string]time.Time),
	}
}

// Start begins periodic refresh in the background, running one cycle
// immediately. Returns immediately; refreshing happens in a goroutine.
// A stopped refresher may be started again.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	// Fresh channels per start, so a Start after Stop works.
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = true
	r.mu.Unlock()

	r.logger.Info("starting knowledge refresher",
		zap.Duration("interval", r.config.Interval))

	go r.run(ctx, stopCh, doneCh)
}

// Stop halts the background refresher and waits for it to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	r.logger.Info("stopping knowledge refresher")
	close(stopCh)
	<-doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// LastRefresh returns when the last successful refresh cycle completed.
func (r *Refresher) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}

// LastError returns the most recent cycle-level error (if any).
func (r *Refresher) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// IsRunning returns true if the refresher is actively running.
func (r *Refresher) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Refresher) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	r.refresh(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("knowledge refresher stopped: context canceled")
			return
		case <-stopCh:
			r.logger.Info("knowledge refresher stopped: stop requested")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	if err := r.RefreshOnce(ctx); err != nil {
		r.logger.Error("knowledge refresh cycle failed", zap.Error(err))
	}
}

// RefreshOnce runs a single refresh cycle synchronously. Running it again
// with no underlying changes is a no-op: unchanged documents are not
// re-ingested, so chunk ids and timestamps stay identical.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	docs, err := r.source.List(ctx)
	if err != nil {
		r.mu.Lock()
		r.lastError = err
		r.mu.Unlock()
		return err
	}

	current := make(map[string]time.Time, len(docs))
	for _, doc := range docs {
		current[doc.ID] = doc.ModTime
	}

	var ingested, removed, failed int

	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.mu.RLock()
		prev, seen := r.indexed[doc.ID]
		r.mu.RUnlock()
		if seen && prev.Equal(doc.ModTime) {
			continue
		}

		text, err := r.source.Read(ctx, doc.ID)
		if err != nil {
			// One bad document must not abort indexing of the others.
			r.logger.Warn("skipping unreadable document",
				zap.String("source_id", doc.ID), zap.Error(err))
			failed++
			continue
		}
		if _, err := r.index.Ingest(ctx, doc.ID, text); err != nil {
			r.logger.Warn("skipping document: ingest failed",
				zap.String("source_id", doc.ID), zap.Error(err))
			failed++
			continue
		}

		r.mu.Lock()
		r.indexed[doc.ID] = doc.ModTime
		r.mu.Unlock()
		ingested++
	}

	// Drop documents that disappeared from the corpus.
	r.mu.RLock()
	var gone []string
	for id := range r.indexed {
		if _, ok := current[id]; !ok {
			gone = append(gone, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range gone {
		if err := r.index.Remove(ctx, id); err != nil {
			r.logger.Warn("failed to remove deleted document",
				zap.String("source_id", id), zap.Error(err))
			failed++
			continue
		}
		r.mu.Lock()
		delete(r.indexed, id)
		r.mu.Unlock()
		removed++
	}

	r.mu.Lock()
	r.lastRefresh = timeNow()
	r.lastError = nil
	r.mu.Unlock()

	if ingested > 0 || removed > 0 || failed > 0 {
		r.logger.Info("knowledge refresh cycle completed",
			zap.Int("ingested", ingested),
			zap.Int("removed", removed),
			zap.Int("failed", failed),
			zap.Int("documents", r.index.DocumentCount()),
		)
	}
	return nil
}
