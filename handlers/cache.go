package handlers

import (
	"log"
	"sync"
	"time"

	"fluxdash/bids"
	"fluxdash/config"
	"fluxdash/models"
	"fluxdash/redcap"
)

// safetyTTL is a long backstop expiry applied to every cache entry.
// Under normal operation the watcher invalidates entries long before this
// fires; it exists only as a safety net in case a kernel watch event is
// ever missed (e.g. watch-limit exhaustion, network filesystem edge cases).
const safetyTTL = 20 * time.Minute

// staleCache holds one computed value and serves it stale while a single
// background goroutine refreshes it. Callers only ever block on the very
// first request; after that an invalidation hands back the old value and
// schedules a rebuild.
type staleCache[T any] struct {
	name  string
	build func() T

	mu         sync.Mutex
	val        T
	have       bool
	expires    time.Time
	refreshing bool
}

func newStaleCache[T any](name string, build func() T) *staleCache[T] {
	return &staleCache[T]{name: name, build: build}
}

// Get returns the cached value, rebuilding synchronously only on first use.
func (c *staleCache[T]) Get() T {
	c.mu.Lock()
	if !c.have {
		// First request: build while holding the lock so concurrent callers
		// wait for one result instead of walking the dataset in parallel.
		c.val = c.build()
		c.have = true
		c.expires = time.Now().Add(safetyTTL)
		val := c.val
		c.mu.Unlock()
		return val
	}

	val := c.val
	expired := time.Now().After(c.expires)
	if expired && !c.refreshing {
		c.refreshing = true
		go c.refresh()
	}
	c.mu.Unlock()
	return val
}

// refresh recomputes the value and swaps it in. Runs in its own goroutine.
func (c *staleCache[T]) refresh() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("cache: %s refresh panic: %v", c.name, r)
		}
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	start := time.Now()
	fresh := c.build()

	c.mu.Lock()
	c.val = fresh
	c.expires = time.Now().Add(safetyTTL)
	c.mu.Unlock()
	log.Printf("cache: %s refreshed in %s", c.name, time.Since(start).Round(time.Millisecond))
}

// Invalidate marks the value expired so the next Get schedules a rebuild.
// The last known value stays readable; callers never block.
func (c *staleCache[T]) Invalidate() {
	c.mu.Lock()
	c.expires = time.Time{} // zero time is always in the past
	c.mu.Unlock()
}

// Caches bundles the dataset-derived caches the page handlers read from.
type Caches struct {
	Summary  *staleCache[*bids.DatasetSummary]
	Redcap   *staleCache[*redcap.Summary]
	MRIQC    *staleCache[[]models.Report]
	FMRIPrep *staleCache[[]models.Report]
}

// NewCaches wires the caches to the configured roots.
func NewCaches(cfg *config.Config) *Caches {
	return &Caches{
		Summary: newStaleCache("summary", func() *bids.DatasetSummary {
			s, err := bids.Summarize(cfg.DatasetRoot)
			if err != nil {
				log.Printf("cache: summarize %s: %v", cfg.DatasetRoot, err)
				return &bids.DatasetSummary{}
			}
			return s
		}),
		Redcap: newStaleCache("redcap", func() *redcap.Summary {
			s, err := redcap.Load(cfg.RedcapRoot)
			if err != nil {
				log.Printf("cache: redcap %s: %v", cfg.RedcapRoot, err)
				return &redcap.Summary{}
			}
			return s
		}),
		MRIQC: newStaleCache("mriqc reports", func() []models.Report {
			return listReports(cfg.MRIQCRoot(), "/mriqc_files/")
		}),
		FMRIPrep: newStaleCache("fmriprep reports", func() []models.Report {
			return listReports(cfg.FMRIPrepRoot(), "/fmriprep_files/")
		}),
	}
}

// InvalidateDataset flags every dataset-derived cache stale. Called by the
// watcher on any change under the dataset root.
func (c *Caches) InvalidateDataset() {
	c.Summary.Invalidate()
	c.MRIQC.Invalidate()
	c.FMRIPrep.Invalidate()
}

// InvalidateRedcap flags the recruitment cache stale.
func (c *Caches) InvalidateRedcap() {
	c.Redcap.Invalidate()
}

// Warm populates every cache in the background so the first page load is
// served from memory. Server startup is never delayed.
func (c *Caches) Warm() {
	go func() {
		log.Println("cache: warming started")
		c.Summary.Get()
		c.MRIQC.Get()
		c.FMRIPrep.Get()
		c.Redcap.Get()
		log.Println("cache: warming complete")
	}()
}
