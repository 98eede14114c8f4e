// Package download streams HTTP response bodies to disk through an
// optional staging cache, with progress reporting and deduplication of
// concurrent requests for the same URL.
//
// # Engine
//
// An [Engine] fetches through an [Opener] and writes either straight to
// the destination or, when its [Cache] has staging enabled, to a staging
// file that is renamed over the destination once the body is complete:
//
//	cache, err := download.NewStagingCache("/var/tmp/netlite", logger)
//	engine, err := download.NewEngine(opener, download.WithCache(cache))
//	report, err := engine.Download(ctx, url, "/srv/file.bin")
//
// # Duplicate Requests
//
// A [Filter] shared by callers decides what happens when a URL is
// requested while a download of it is already running: overlay it,
// reject it, or wait for the running task and replay its outcome.
//
//	engine, err := download.NewEngine(opener,
//		download.WithFilter(download.NewFilter(download.PolicyWait, logger)),
//	)
//
// # Progress
//
// [WithProgress] delivers fractions of the declared length,
// [WithByteProgress] cumulative byte counts. Every download ends with
// exactly one [Event] whose Final field is set.
//
// # Batches
//
// A [Batch] runs downloads in the background under a shared concurrency
// limit. [Batch.Go] returns a [Result] for each job, and [Batch.Summary]
// counts the outcomes once [Batch.Wait] returns.
//
// Most callers should use the higher-level
// [github.com/adamwoolhether/netlite/client] package, which owns an
// Engine and re-exports the download options as client.With* functions.
package download
