package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Job is one background download.
type Job func(ctx context.Context) (Report, error)

// Adder starts a download in the background. It matches
// client.DownloadAsync so a [Result] can extend its own batch.
type Adder func(ctx context.Context, url, destPath string, optFns ...Option) (*Result, error)

// Summary counts the outcomes of a batch.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	// Written is the number of body bytes transferred by downloads that
	// were not replayed from another task.
	Written int64
}

// Batch runs downloads in the background under a shared concurrency
// limit and collects their outcomes.
type Batch struct {
	wg     sync.WaitGroup
	sem    *semaphore.Weighted
	closed atomic.Bool

	mu      sync.Mutex
	errs    []error
	summary Summary
}

// NewBatch creates a Batch running at most limit downloads at a time.
// If limit <= 0, concurrency is unlimited.
func NewBatch(limit int) *Batch {
	b := &Batch{}
	if limit > 0 {
		b.sem = semaphore.NewWeighted(int64(limit))
	}
	return b
}

// Go runs job in a new goroutine once a slot is free. The returned
// Result tracks this job; adder lets the Result add further jobs to b.
func (b *Batch) Go(ctx context.Context, job Job, adder Adder) *Result {
	ctx, cancel := context.WithCancel(ctx)
	r := &Result{
		adder:  adder,
		done:   make(chan struct{}),
		cancel: cancel,
		batch:  b,
	}

	b.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			close(r.done)
			b.wg.Done()
		}()

		if b.sem != nil {
			if err := b.sem.Acquire(ctx, 1); err != nil {
				r.settle(Report{}, fmt.Errorf("%w: waiting for batch slot: %w", ErrDownloadCancelled, err))
				return
			}
			defer b.sem.Release(1)
		}

		if b.closed.Load() {
			r.settle(Report{}, ErrBatchClosed)
			return
		}

		r.settle(job(ctx))
	}()

	return r
}

// Close stops jobs that have not started yet. They fail with
// [ErrBatchClosed]; running jobs are unaffected.
func (b *Batch) Close() {
	b.closed.Store(true)
}

// Wait blocks until every job in the batch has finished and returns
// their errors joined.
func (b *Batch) Wait() error {
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	return errors.Join(b.errs...)
}

// Summary returns the outcome counts of the jobs finished so far.
func (b *Batch) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

func (b *Batch) record(report Report, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.errs = append(b.errs, err)
	}

	switch report.Status {
	case StatusSucceeded:
		b.summary.Succeeded++
	case StatusSkipped:
		b.summary.Skipped++
	default:
		b.summary.Failed++
	}
	if !report.Replayed {
		b.summary.Written += report.Written
	}
}
