//go:build integration

package client_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adamwoolhether/netlite/client"
	"github.com/adamwoolhether/netlite/client/download"
)

const remoteVersionURL = "https://go.dev/VERSION?m=text"

func TestIntegration_Get_Remote(t *testing.T) {
	c, _ := newClient(t, false)

	body, err := c.Get(t.Context(), remoteVersionURL)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if !strings.HasPrefix(string(body), "go") {
		t.Errorf("expected content to start with %q, got %q", "go", string(body))
	}
}

func TestIntegration_Download_RemoteStaged(t *testing.T) {
	c, stagingDir := newClient(t, true)
	destPath := filepath.Join(t.TempDir(), "VERSION")

	report, err := c.Download(t.Context(), remoteVersionURL, destPath, client.WithProgressLog())
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if report.Written == 0 {
		t.Fatal("downloaded file is empty")
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}

	body, err := c.Get(t.Context(), remoteVersionURL, client.WithNoResponseCache())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("download and get disagree; %q vs %q", got, body)
	}

	assertNoStagingFiles(t, stagingDir)
}

func TestIntegration_DownloadAsync_RemoteBatch(t *testing.T) {
	c, _ := newClient(t, true, client.WithDedupPolicy(download.PolicyWait))
	tmpDir := t.TempDir()

	r, err := c.DownloadAsync(t.Context(), remoteVersionURL, filepath.Join(tmpDir, "a"), client.WithBatch(2))
	if err != nil {
		t.Fatalf("starting async download: %v", err)
	}
	r.Add(t.Context(), remoteVersionURL, filepath.Join(tmpDir, "b"))

	if err := r.Wait(); err != nil {
		t.Fatalf("batch failed: %v", err)
	}
}

func TestIntegration_Download_RemoteCancel(t *testing.T) {
	c, stagingDir := newClient(t, true)
	destPath := filepath.Join(t.TempDir(), "large.bin")

	ctx, cancel := context.WithTimeout(t.Context(), 500*time.Millisecond)
	defer cancel()

	_, err := c.Download(ctx, "https://go.dev/dl/go1.24.0.src.tar.gz", destPath)
	if err == nil {
		t.Skip("download completed before the deadline")
	}
	if !errors.Is(err, client.ErrDownloadCancelled) {
		t.Errorf("expected ErrDownloadCancelled, got: %v", err)
	}

	if _, statErr := os.Stat(destPath); !os.IsNotExist(statErr) {
		t.Error("expected no destination after cancellation")
	}
	assertNoStagingFiles(t, stagingDir)
}
