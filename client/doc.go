// Package client retrieves HTTP resources into memory or into files,
// built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithReadTimeout(10 * time.Second),
//		client.WithStagingDir("/var/tmp/netlite"),
//		client.WithDedupPolicy(download.PolicyWait),
//	)
//
// # Getting Resources
//
// [Client.Get] reads a response body into memory. Responses carrying an
// ETag or Last-Modified header are kept in a bounded cache and
// revalidated on the next get:
//
//	body, err := c.Get(ctx, "https://example.com/index.json")
//
// # Downloading Files
//
// [Client.Download] streams a response body to disk. With a staging
// directory the body lands in a staging file first and replaces the
// destination only once complete:
//
//	report, err := c.Download(ctx, url, "/srv/file.bin",
//		client.WithChecksum(sha256.New(), expectedHex),
//		client.WithByteProgress(func(ev client.ProgressEvent) { ... }),
//	)
//
// [Client.DownloadProgress] returns the progress fractions as a channel
// instead, and [Client.DownloadTo] streams into any [io.Writer].
//
// # Async Downloads
//
// A single file can be downloaded asynchronously with [Client.DownloadAsync]:
//
//	r, err := c.DownloadAsync(ctx, url, "/tmp/file.bin")
//	// ... do other work ...
//	if err := r.Err(); err != nil { ... }
//
// For multiple concurrent downloads, use [WithBatch] to set a concurrency
// limit and [download.Result.Add] to add files to the batch:
//
//	r, err := c.DownloadAsync(ctx, urlA, "/tmp/a.bin", client.WithBatch(4))
//	r.Add(ctx, urlB, "/tmp/b.bin")
//	r.Add(ctx, urlC, "/tmp/c.bin")
//	err = r.Wait() // blocks until all downloads finish
//	sum := r.Summary()
//
// For lower-level control see the
// [github.com/adamwoolhether/netlite/client/download] package.
package client
