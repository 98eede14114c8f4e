package client_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adamwoolhether/netlite/client"
	"github.com/adamwoolhether/netlite/client/download"
)

func exampleServer(body []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
}

func ExampleBuild() {
	c, err := client.Build(
		client.WithReadTimeout(10*time.Second),
		client.WithUserAgent("example/1.0"),
		client.WithDedupPolicy(download.PolicyWait),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("policy:", c.Filter().Policy())
	// Output: policy: wait
}

func ExampleClient_Get() {
	ts := exampleServer([]byte(`{"name":"netlite"}`))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	body, err := c.Get(context.Background(), ts.URL,
		client.WithHeaders(http.Header{"Accept": {"application/json"}}),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(string(body))
	// Output: {"name":"netlite"}
}

func ExampleClient_Download() {
	content := []byte("file contents")
	ts := exampleServer(content)
	defer ts.Close()

	dir, err := os.MkdirTemp("", "example-download-*")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer os.RemoveAll(dir)

	c, err := client.Build(client.WithStagingDir(filepath.Join(dir, "staging")))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	sum := sha256.Sum256(content)
	report, err := c.Download(context.Background(), ts.URL, filepath.Join(dir, "file.txt"),
		client.WithChecksum(sha256.New(), hex.EncodeToString(sum[:])),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(report.Status, report.Written)
	// Output: succeeded 13
}

func ExampleClient_DownloadProgress() {
	ts := exampleServer(bytes.Repeat([]byte("x"), 1024))
	defer ts.Close()

	dir, err := os.MkdirTemp("", "example-progress-*")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer os.RemoveAll(dir)

	c, err := client.Build()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	for ev := range c.DownloadProgress(context.Background(), ts.URL, filepath.Join(dir, "x.bin")) {
		if ev.Final {
			fmt.Println(ev.Status, ev.Bytes)
		}
	}
	// Output: succeeded 1024
}

func ExampleClient_DownloadTo() {
	ts := exampleServer([]byte("streamed"))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	var buf bytes.Buffer
	n, err := c.DownloadTo(context.Background(), ts.URL, &buf)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(n, buf.String())
	// Output: 8 streamed
}

func ExampleClient_DownloadAsync() {
	ts := exampleServer([]byte("async"))
	defer ts.Close()

	dir, err := os.MkdirTemp("", "example-async-*")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer os.RemoveAll(dir)

	c, err := client.Build()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	r, err := c.DownloadAsync(context.Background(), ts.URL, filepath.Join(dir, "a.bin"), client.WithBatch(2))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	r.Add(context.Background(), ts.URL, filepath.Join(dir, "b.bin"))

	if err := r.Wait(); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("batch complete")
	// Output: batch complete
}
