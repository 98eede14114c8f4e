package download

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// stagedFiles tracks unfinished staging files across every Cache in the
// process. Removal on termination is inherently process-wide, so this
// is the one piece of package-level state: entries are added by
// Cache.Prepare and dropped by Cache.Release/Cache.Promoted.
var stagedFiles = newExitRegistry()

type exitRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func newExitRegistry() *exitRegistry {
	return &exitRegistry{paths: make(map[string]struct{})}
}

func (r *exitRegistry) add(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[path] = struct{}{}
}

func (r *exitRegistry) remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

func (r *exitRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

// cleanup removes every registered file and empties the registry.
func (r *exitRegistry) cleanup() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for path := range r.paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		delete(r.paths, path)
	}

	return errors.Join(errs...)
}

// watch removes registered files on the first SIGINT or SIGTERM, then
// hands the signal to raise. Watching ends when ctx is done or the
// returned stop func is called.
func (r *exitRegistry) watch(ctx context.Context, raise func(os.Signal)) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			_ = r.cleanup()
			signal.Stop(ch)
			raise(sig)
		case <-ctx.Done():
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// reraise delivers sig to the process again with default handling restored.
func reraise(sig os.Signal) {
	if p, err := os.FindProcess(os.Getpid()); err == nil {
		_ = p.Signal(sig)
	}
}

// HandleSignals removes unfinished staging files when the process
// receives SIGINT or SIGTERM, then re-raises the signal so the default
// action terminates the process. It is meant for programs that do not
// handle these signals themselves; programs that do should call
// [CleanupStaged] from their own shutdown path instead. The handler is
// removed when ctx is done or stop is called.
func HandleSignals(ctx context.Context) (stop func()) {
	return stagedFiles.watch(ctx, reraise)
}

// CleanupStaged removes every unfinished staging file registered for
// delete-on-exit. Nothing is removed on termination unless it is called
// or [HandleSignals] is installed.
func CleanupStaged() error {
	return stagedFiles.cleanup()
}
