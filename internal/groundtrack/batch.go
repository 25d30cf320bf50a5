package groundtrack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yonda-yonda/tle-with-mapbox/internal/propagation"
	"github.com/yonda-yonda/tle-with-mapbox/internal/tle"
)

// trackJob is a unit of work for the worker pool.
type trackJob struct {
	index   int
	entry   tle.Elements
	started time.Time
}

// trackResult carries a BatchResult back to its slot.
type trackResult struct {
	index int
	BatchResult
}

// BatchResult is the outcome for one catalog entry.
type BatchResult struct {
	Elements tle.Elements
	Track    *Track
	Err      error
}

// WorkerPool computes ground tracks for many satellites on a fixed number of goroutines.
type WorkerPool struct {
	workers int
	cfg     Config
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, cfg Config, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		cfg:     cfg,
		logger:  logger,
	}
}

// TrackBatch computes one pass per entry starting at start. Results keep the
// order of entries; failures are logged and carried in BatchResult.Err.
// Entries not reached before ctx is cancelled carry ctx.Err().
func (wp *WorkerPool) TrackBatch(ctx context.Context, entries []tle.Elements, start time.Time) ([]BatchResult, int, int) {
	if len(entries) == 0 {
		return nil, 0, 0
	}

	out := make([]BatchResult, len(entries))
	for i, e := range entries {
		out[i] = BatchResult{Elements: e, Err: context.Canceled}
	}

	jobs := make(chan trackJob, wp.workers*2)
	results := make(chan trackResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := trackResult{index: job.index, BatchResult: wp.trackSingle(job)}
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, entry := range entries {
			select {
			case jobs <- trackJob{index: i, entry: entry, started: start}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var successCount, errorCount int
	for r := range results {
		out[r.index] = r.BatchResult
		if r.Err != nil {
			errorCount++
			wp.logger.Warn("ground track failed",
				"catalog_number", r.Elements.CatalogNumber,
				"name", r.Elements.Name,
				"error", r.Err,
			)
			continue
		}
		successCount++
	}

	if err := ctx.Err(); err != nil {
		for i := range out {
			if out[i].Track == nil && out[i].Err == context.Canceled {
				out[i].Err = err
			}
		}
	}

	return out, successCount, errorCount
}

func (wp *WorkerPool) trackSingle(job trackJob) BatchResult {
	prop, err := propagation.FromElements(job.entry)
	if err != nil {
		return BatchResult{Elements: job.entry, Err: err}
	}
	track, err := Compute(prop, wp.cfg, job.started)
	if err != nil {
		return BatchResult{Elements: job.entry, Err: err}
	}
	return BatchResult{Elements: job.entry, Track: track}
}
