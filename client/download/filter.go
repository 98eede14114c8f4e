package download

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Policy decides what happens to a download request for a URL that
// already has a running primary task.
type Policy uint8

const (
	// PolicyOverlay lets the duplicate run as an independent, unregistered
	// task. Concurrent writes to the same destination are not prevented.
	PolicyOverlay Policy = iota
	// PolicyWait blocks the duplicate until the primary finishes and then
	// replays the primary's outcome without downloading again.
	PolicyWait
	// PolicyReject drops the duplicate: it completes as [StatusSkipped]
	// without touching the network or the filesystem.
	PolicyReject
)

func (p Policy) String() string {
	switch p {
	case PolicyOverlay:
		return "overlay"
	case PolicyWait:
		return "wait"
	case PolicyReject:
		return "reject"
	default:
		return fmt.Sprintf("Policy(%d)", p)
	}
}

// ParsePolicy maps "overlay", "wait" or "reject" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "overlay":
		return PolicyOverlay, nil
	case "wait":
		return PolicyWait, nil
	case "reject":
		return PolicyReject, nil
	default:
		return 0, fmt.Errorf("%w: unknown dedup policy %q", ErrConfiguration, s)
	}
}

type admission uint8

const (
	admitPrimary admission = iota + 1
	admitOverlay
	admitWait
	admitReject
)

func (a admission) String() string {
	switch a {
	case admitPrimary:
		return "primary"
	case admitOverlay:
		return "overlay"
	case admitWait:
		return "wait"
	case admitReject:
		return "reject"
	default:
		return "unknown"
	}
}

// task is the record of a running primary download. done is closed
// exactly once, after the outcome fields are set, so every waiter
// observes the same outcome.
type task struct {
	id   uuid.UUID
	url  string
	dest string
	done chan struct{}

	written int64
	err     error
}

// Filter is a registry of in-flight downloads keyed by URL. It is safe
// for concurrent use and may be shared by any number of engines.
type Filter struct {
	mu     sync.Mutex
	policy Policy
	tasks  map[string]*task
	logger *slog.Logger
}

// NewFilter returns a Filter applying policy to duplicate requests.
func NewFilter(policy Policy, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Filter{
		policy: policy,
		tasks:  make(map[string]*task),
		logger: logger,
	}
}

// Policy returns the current duplicate policy.
func (f *Filter) Policy() Policy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.policy
}

// SetPolicy changes the duplicate policy for subsequent admissions.
// Waiters already blocked keep waiting for their primary.
func (f *Filter) SetPolicy(p Policy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = p
}

// Running reports whether a primary task is registered for url.
func (f *Filter) Running(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tasks[url]
	return ok
}

// admit registers the caller as primary for url, or applies the policy
// if a primary is already running. The returned task is the caller's
// own record for admitPrimary and the running primary's record for
// admitWait; it is nil otherwise.
func (f *Filter) admit(url, dest string) (admission, *task) {
	f.mu.Lock()
	defer f.mu.Unlock()

	running, ok := f.tasks[url]
	if !ok {
		t := &task{
			id:   uuid.New(),
			url:  url,
			dest: dest,
			done: make(chan struct{}),
		}
		f.tasks[url] = t
		f.logger.Debug("download admitted", "url", url, "task", t.id, "admission", admitPrimary)

		return admitPrimary, t
	}

	var a admission
	switch f.policy {
	case PolicyOverlay:
		a = admitOverlay
	case PolicyWait:
		a = admitWait
	default:
		a = admitReject
	}
	f.logger.Debug("duplicate download", "url", url, "task", running.id, "admission", a)

	if a == admitWait {
		return a, running
	}

	return a, nil
}

// finish records the primary's outcome, removes its record and
// releases every waiter.
func (f *Filter) finish(t *task, written int64, err error) {
	f.mu.Lock()
	if f.tasks[t.url] == t {
		delete(f.tasks, t.url)
	}
	f.mu.Unlock()

	t.written = written
	t.err = err
	close(t.done)
}

// wait blocks until t finishes or ctx is done. A waiter giving up does
// not affect the primary task.
func (t *task) wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for running task: %w", ErrDownloadCancelled, ctx.Err())
	}
}
