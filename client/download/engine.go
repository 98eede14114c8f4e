package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/adamwoolhether/netlite/client/download"

// errTaskAborted is the outcome waiters observe if a primary task
// unwinds without recording one.
var errTaskAborted = errors.New("running task aborted")

// Engine coordinates download attempts: duplicate admission, opening
// the request, streaming into a staging or destination file, and
// promotion. It is safe for concurrent use.
type Engine struct {
	opener Opener
	cache  *Cache
	filter *Filter
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEngine returns an Engine fetching through opener.
func NewEngine(opener Opener, optFns ...EngineOption) (*Engine, error) {
	if opener == nil {
		return nil, errors.New("opener must not be nil")
	}

	e := &Engine{
		opener: opener,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}

	for _, opt := range optFns {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("applying engine option: %w", err)
		}
	}

	if e.cache == nil {
		e.cache = NewCache(e.logger)
	}

	return e, nil
}

// Cache returns the engine's cache configuration.
func (e *Engine) Cache() *Cache { return e.cache }

// Filter returns the engine's duplicate filter, or nil.
func (e *Engine) Filter() *Filter { return e.filter }

// Download fetches url into destPath.
//
// With staging enabled the body is written to a staging file which is
// renamed over destPath only after the whole body arrived; otherwise
// destPath is written directly and removed again on failure. In both
// cases a failed download leaves no staging file behind, and destPath
// either absent or as it was before the call.
//
// The returned error is non-nil exactly when the report's Status is
// [StatusFailed]. A duplicate rejected by the filter returns
// [StatusSkipped] and a nil error.
func (e *Engine) Download(ctx context.Context, url, destPath string, optFns ...Option) (Report, error) {
	opts, err := apply(optFns)
	if err != nil {
		return Report{Status: StatusFailed}, err
	}

	rep := e.newReporter(url, opts)

	ctx, span := e.tracer.Start(ctx, "download",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("url.full", url),
			attribute.String("file.path", destPath),
		),
	)
	defer span.End()

	report, err := e.download(ctx, url, destPath, opts, rep)
	if err != nil {
		report.Status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("download.status", report.Status.String()),
		attribute.Int64("download.bytes", report.Written),
		attribute.Bool("download.replayed", report.Replayed),
	)

	rep.finish(report.Status, report.Written, err)

	return report, err
}

func (e *Engine) download(ctx context.Context, url, destPath string, opts options, rep *reporter) (report Report, err error) {
	if url == "" {
		return Report{}, errors.New("url must not be empty")
	}
	if destPath == "" {
		return Report{}, errors.New("destPath must not be empty")
	}

	if opts.skipExisting {
		if _, err := os.Stat(destPath); err == nil {
			e.logger.Info("skipping existing file", "path", destPath)
			return Report{Status: StatusSkipped, Path: destPath}, nil
		}
	}

	if e.filter == nil {
		return e.attempt(ctx, url, destPath, opts, rep)
	}

	admitted, t := e.filter.admit(url, destPath)
	switch admitted {
	case admitReject:
		return Report{Status: StatusSkipped}, nil
	case admitWait:
		return e.replay(ctx, t)
	case admitOverlay:
		return e.attempt(ctx, url, destPath, opts, rep)
	}

	outcome := errTaskAborted
	defer func() {
		e.filter.finish(t, report.Written, outcome)
	}()

	report, err = e.attempt(ctx, url, destPath, opts, rep)
	report.TaskID = t.id.String()
	outcome = err

	return report, err
}

// replay waits for a running primary task and inherits its outcome.
func (e *Engine) replay(ctx context.Context, t *task) (Report, error) {
	if err := t.wait(ctx); err != nil {
		return Report{TaskID: t.id.String()}, err
	}

	report := Report{
		Status:   StatusSucceeded,
		Path:     t.dest,
		Written:  t.written,
		Replayed: true,
		TaskID:   t.id.String(),
	}
	if t.err != nil {
		return report, fmt.Errorf("running task for %s failed: %w", t.url, t.err)
	}

	return report, nil
}

// attempt performs one download of url into destPath.
func (e *Engine) attempt(ctx context.Context, url, destPath string, opts options, rep *reporter) (Report, error) {
	stagingDir, staging := e.cache.stagingState()

	resp, err := e.open(ctx, url, opts.config)
	if err != nil {
		return Report{}, err
	}
	defer e.closeBody(resp.Body)

	rep.total = resp.ContentLength
	if rep.log != nil {
		rep.log.total = resp.ContentLength
	}
	if rep.mode == progressFraction && resp.ContentLength < 0 {
		return Report{}, fmt.Errorf("%w: progress fractions need a declared length for %s", ErrLengthUnavailable, url)
	}

	writePath := destPath
	var file *os.File
	if staging {
		writePath, file, err = e.cache.stage(stagingDir, url)
	} else {
		file, err = os.OpenFile(destPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			err = fmt.Errorf("%w: opening destination: %w", ErrFilesystem, err)
		}
	}
	if err != nil {
		return Report{}, err
	}

	var committed bool
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			e.logger.Error("defer closing download file", "path", writePath, "error", err)
		}
		if committed {
			return
		}
		if staging {
			e.cache.Release(writePath)
			return
		}
		if err := os.Remove(destPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.logger.Error("failed to remove partial download", "path", destPath, "error", err)
		}
	}()

	written, err := e.copy(ctx, file, resp, opts, rep)
	if err != nil {
		return Report{Written: written}, err
	}

	if err := file.Sync(); err != nil {
		return Report{Written: written}, fmt.Errorf("%w: syncing download file: %w", ErrFilesystem, err)
	}
	if err := file.Close(); err != nil {
		return Report{Written: written}, fmt.Errorf("%w: closing download file: %w", ErrFilesystem, err)
	}

	if staging {
		// os.Rename replaces an existing destination atomically, so the
		// old content is never observed alongside a missing file.
		if err := os.Rename(writePath, destPath); err != nil {
			return Report{Written: written}, fmt.Errorf("%w: promoting staged file: %w", ErrFilesystem, err)
		}
		e.cache.Promoted(writePath)
	}
	committed = true

	e.logger.Debug("download complete", "url", url, "path", destPath, "bytes", written, "staged", staging)

	return Report{Status: StatusSucceeded, Path: destPath, Written: written}, nil
}

// Stream fetches url into w without staging or duplicate filtering,
// returning the number of bytes written.
func (e *Engine) Stream(ctx context.Context, url string, w io.Writer, optFns ...Option) (int64, error) {
	opts, err := apply(optFns)
	if err != nil {
		return 0, err
	}
	if w == nil {
		return 0, errors.New("writer must not be nil")
	}

	rep := e.newReporter(url, opts)

	ctx, span := e.tracer.Start(ctx, "stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", url)),
	)
	defer span.End()

	written, err := e.stream(ctx, url, w, opts, rep)
	status := StatusSucceeded
	if err != nil {
		status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int64("download.bytes", written))
	rep.finish(status, written, err)

	return written, err
}

func (e *Engine) stream(ctx context.Context, url string, w io.Writer, opts options, rep *reporter) (int64, error) {
	resp, err := e.open(ctx, url, opts.config)
	if err != nil {
		return 0, err
	}
	defer e.closeBody(resp.Body)

	rep.total = resp.ContentLength
	if rep.log != nil {
		rep.log.total = resp.ContentLength
	}
	if rep.mode == progressFraction && resp.ContentLength < 0 {
		return 0, fmt.Errorf("%w: progress fractions need a declared length for %s", ErrLengthUnavailable, url)
	}

	return e.copy(ctx, w, resp, opts, rep)
}

// open issues the request and requires 200 OK.
func (e *Engine) open(ctx context.Context, url string, cfg RequestConfig) (*Response, error) {
	resp, err := e.opener.Open(ctx, url, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: opening %s: %w", ErrDownloadCancelled, url, err)
		}
		return nil, fmt.Errorf("%w: opening %s: %w", ErrNetwork, url, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer e.closeBody(resp.Body)
		return nil, ReadStatusError(resp.StatusCode, resp.Body)
	}

	return resp, nil
}

// copy transfers the body into w, then checks the declared length and
// the checksum.
func (e *Engine) copy(ctx context.Context, w io.Writer, resp *Response, opts options, rep *reporter) (int64, error) {
	body := &bodyReader{ctx: ctx, r: resp.Body}

	written, err := Transfer(opts.checksum.writer(w), body, rep.update)
	if err != nil {
		var be *bodyError
		if errors.As(err, &be) {
			return written, be.err
		}
		return written, fmt.Errorf("%w: writing body: %w", ErrFilesystem, err)
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return written, &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", resp.ContentLength, written),
		}
	}

	if err := opts.checksum.verify(); err != nil {
		return written, err
	}

	return written, nil
}

func (e *Engine) newReporter(url string, opts options) *reporter {
	rep := &reporter{mode: opts.mode, sink: opts.sink, total: -1}
	if opts.logProgress {
		rep.log = &progressLog{
			logger:    e.logger,
			url:       url,
			total:     -1,
			startTime: time.Now(),
		}
	}

	return rep
}

func (e *Engine) closeBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	if err := body.Close(); err != nil {
		e.logger.Error("failed to close response body", "error", err)
	}
}

// ReadStatusError builds a [StatusError] from a non-200 response,
// reading at most 4KB of its body.
func ReadStatusError(statusCode int, body io.Reader) *StatusError {
	msg := "unable to read body"
	if body != nil {
		if b, err := io.ReadAll(io.LimitReader(body, maxErrBodySize)); err == nil {
			msg = string(b)
		}
	}

	return &StatusError{StatusCode: statusCode, Body: msg}
}

// bodyError marks errors that came from the response body so the copy
// loop can tell them apart from write failures.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return e.err.Error() }
func (e *bodyError) Unwrap() error { return e.err }

// bodyReader stops reading once ctx is done and classifies read
// failures as cancellation or network errors.
type bodyReader struct {
	ctx context.Context
	r   io.Reader
}

func (br *bodyReader) Read(p []byte) (int, error) {
	if err := br.ctx.Err(); err != nil {
		return 0, &bodyError{err: fmt.Errorf("%w: %w", ErrDownloadCancelled, err)}
	}

	n, err := br.r.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}

	if br.ctx.Err() != nil {
		return n, &bodyError{err: fmt.Errorf("%w: %w", ErrDownloadCancelled, err)}
	}

	return n, &bodyError{err: fmt.Errorf("%w: reading body: %w", ErrNetwork, err)}
}
