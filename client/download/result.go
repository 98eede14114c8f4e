package download

import (
	"context"
	"slices"
)

// Result represents an in-flight or completed background download.
type Result struct {
	adder  Adder
	done   chan struct{}
	report Report
	err    error
	cancel context.CancelFunc
	batch  *Batch
}

// Add starts another download in the same batch and returns its Result.
// WithBatch cannot be passed here.
//
// A download that cannot start, because of an empty destPath or an
// invalid option, is recorded as failed in the batch so [Result.Wait]
// reports it.
func (r *Result) Add(ctx context.Context, url, destPath string, optFns ...Option) *Result {
	result, err := r.adder(ctx, url, destPath, slices.Concat([]Option{inBatch(r.batch)}, optFns)...)
	if err == nil {
		return result
	}

	failed := &Result{
		adder:  r.adder,
		done:   make(chan struct{}),
		cancel: func() {},
		batch:  r.batch,
	}
	failed.settle(Report{}, err)
	close(failed.done)

	return failed
}

// Done is closed once this download has finished.
func (r *Result) Done() <-chan struct{} { return r.done }

// Err blocks until this download completes and returns its error.
func (r *Result) Err() error {
	<-r.done
	return r.err
}

// Report blocks until this download completes and returns its report.
func (r *Result) Report() Report {
	<-r.done
	return r.report
}

// Wait blocks until every download in the batch completes and returns
// their errors joined.
func (r *Result) Wait() error {
	return r.batch.Wait()
}

// Summary returns the outcome counts of the batch so far.
func (r *Result) Summary() Summary {
	return r.batch.Summary()
}

// Cancel cancels this download only.
func (r *Result) Cancel() {
	r.cancel()
}

func (r *Result) settle(report Report, err error) {
	if err != nil {
		report.Status = StatusFailed
	}
	r.report, r.err = report, err
	r.batch.record(report, err)
}
