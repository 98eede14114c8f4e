package client

import (
	"context"
	"hash"
	"net/http"

	"github.com/adamwoolhether/netlite/client/download"
)

// ————————————————————————————————————————————————————————————————————
// Type aliases – re-export user-facing types from [download].
// ————————————————————————————————————————————————————————————————————

type (
	// RequestOption configures a single Get or Download call.
	RequestOption = download.Option

	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error

	// DownloadReport describes how a download call ended.
	DownloadReport = download.Report

	// DownloadResult represents an in-flight or completed async download.
	DownloadResult = download.Result

	// ProgressEvent is a single progress notification.
	ProgressEvent = download.Event

	// BatchSummary counts the outcomes of a batch.
	BatchSummary = download.Summary
)

// ————————————————————————————————————————————————————————————————————
// Sentinel errors
// ————————————————————————————————————————————————————————————————————

var (
	// ErrConfiguration indicates an invalid staging cache setup.
	ErrConfiguration = download.ErrConfiguration

	// ErrNetwork is wrapped by every failure to open or read a resource,
	// including unexpected status codes.
	ErrNetwork = download.ErrNetwork

	// ErrFilesystem is wrapped by create, delete and rename failures.
	ErrFilesystem = download.ErrFilesystem

	// ErrUnexpectedStatusCode is matched by [UnexpectedStatusError].
	ErrUnexpectedStatusCode = download.ErrUnexpectedStatusCode

	// ErrAuthFailure is joined with [ErrUnexpectedStatusCode] when the server
	// responds with 401 Unauthorized or 403 Forbidden.
	ErrAuthFailure = download.ErrAuthFailure

	// ErrLengthUnavailable indicates fraction progress was requested for a
	// response without a declared length.
	ErrLengthUnavailable = download.ErrLengthUnavailable

	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = download.ErrDownloadCancelled

	// ErrBatchClosed fails batch downloads that had not started when the
	// batch was closed.
	ErrBatchClosed = download.ErrBatchClosed
)

// ————————————————————————————————————————————————————————————————————
// Request option forwarding functions
// ————————————————————————————————————————————————————————————————————

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) RequestOption {
	return download.WithChecksum(h, expected)
}

// WithProgress delivers progress fractions of the declared length to sink.
func WithProgress(sink func(ProgressEvent)) RequestOption { return download.WithProgress(sink) }

// WithByteProgress delivers cumulative byte counts to sink.
func WithByteProgress(sink func(ProgressEvent)) RequestOption {
	return download.WithByteProgress(sink)
}

// WithProgressLog enables periodic download progress logging.
func WithProgressLog() RequestOption { return download.WithProgressLog() }

// WithSkipExisting causes a download to complete as skipped when
// the destination file already exists.
func WithSkipExisting() RequestOption { return download.WithSkipExisting() }

// WithBatch starts a batch of background downloads sharing a concurrency
// limit. If maxConcurrent <= 0, concurrency is unlimited.
func WithBatch(maxConcurrent int) RequestOption { return download.WithBatch(maxConcurrent) }

// WithHeaders adds custom headers to the outgoing request.
func WithHeaders(h http.Header) RequestOption { return download.WithHeaders(h) }

// WithCookies attaches the given cookies to the outgoing request.
func WithCookies(cookies ...*http.Cookie) RequestOption { return download.WithCookies(cookies...) }

// WithFollowRedirects overrides the client's redirect policy for one request.
func WithFollowRedirects(follow bool) RequestOption { return download.WithFollowRedirects(follow) }

// WithNoResponseCache bypasses the response cache for one get.
func WithNoResponseCache() RequestOption { return download.WithNoResponseCache() }

// WithIdentityEncoding asks the server for an uncompressed body, so it
// declares a Content-Length usable for progress fractions.
func WithIdentityEncoding() RequestOption { return download.WithIdentityEncoding() }

// ————————————————————————————————————————————————————————————————————
// Staging cleanup
// ————————————————————————————————————————————————————————————————————

// HandleSignals removes unfinished staging files on SIGINT or SIGTERM and
// re-raises the signal. See [download.HandleSignals].
func HandleSignals(ctx context.Context) (stop func()) { return download.HandleSignals(ctx) }

// CleanupStaged removes unfinished staging files registered for
// delete-on-exit.
func CleanupStaged() error { return download.CleanupStaged() }
