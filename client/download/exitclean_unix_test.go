//go:build unix

package download

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestCache_PrepareLeavesSignalsAlone(t *testing.T) {
	host := make(chan os.Signal, 4)
	signal.Notify(host, syscall.SIGTERM)
	defer signal.Stop(host)

	c, err := NewStagingCache(filepath.Join(t.TempDir(), "staging"), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	path := c.StagingPath("https://example.com/file.bin")

	f, err := c.Prepare(path)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	defer c.Release(path)

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case <-host:
	case <-time.After(2 * time.Second):
		t.Fatal("host handler did not receive SIGTERM")
	}

	select {
	case <-host:
		t.Error("host handler received SIGTERM twice")
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("staging file must survive a signal owned by the host: %v", err)
	}
}

func TestExitRegistry_Watch(t *testing.T) {
	r := newExitRegistry()
	path := filepath.Join(t.TempDir(), "one.tmp")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r.add(path)

	raised := make(chan os.Signal, 1)
	stop := r.watch(t.Context(), func(sig os.Signal) { raised <- sig })
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case sig := <-raised:
		if sig != syscall.SIGTERM {
			t.Errorf("raised %v, want SIGTERM", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not handled")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s removed, stat err: %v", path, err)
	}
	if r.size() != 0 {
		t.Error("registry should be empty after cleanup")
	}
}

func TestExitRegistry_WatchStop(t *testing.T) {
	r := newExitRegistry()
	path := filepath.Join(t.TempDir(), "one.tmp")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r.add(path)

	stop := r.watch(t.Context(), func(os.Signal) { t.Error("signal raised after stop") })
	stop()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("stopping the watch must not remove files: %v", err)
	}
	if r.size() != 1 {
		t.Error("registry should keep its entries")
	}
}
