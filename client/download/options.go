package download

import (
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Option defines optional settings for a single download.
//
// WithChecksum fails the download with [ErrChecksumMismatch] unless the
// body hashes to expected under h (e.g. sha256.New()). expected is hex
// encoded; a malformed value or one of the wrong length is rejected
// before any request is made.
//
// WithProgress and WithByteProgress deliver progress events to a sink.
// WithProgressLog logs progress at most once per second.
//
// WithSkipExisting causes the download to complete as [StatusSkipped]
// when the destination file already exists.
type Option func(*options) error

type options struct {
	checksum     *checksum
	mode         progressMode
	sink         Sink
	logProgress  bool
	skipExisting bool
	batch        *Batch
	config       RequestConfig
}

func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		c, err := newChecksum(h, expected)
		if err != nil {
			return err
		}

		opts.checksum = c
		return nil
	}
}

// WithProgress reports progress as a fraction of the declared content
// length. The download fails with [ErrLengthUnavailable] if the server
// does not declare one.
func WithProgress(sink Sink) Option {
	return func(opts *options) error {
		return opts.setSink(progressFraction, sink)
	}
}

// WithByteProgress reports progress as a cumulative byte count, which
// works whether or not the content length is known.
func WithByteProgress(sink Sink) Option {
	return func(opts *options) error {
		return opts.setSink(progressBytes, sink)
	}
}

func (opts *options) setSink(mode progressMode, sink Sink) error {
	if sink == nil {
		return errors.New("progress sink must not be nil")
	}
	if opts.sink != nil {
		return errors.New("only one progress sink may be set")
	}

	opts.mode = mode
	opts.sink = sink
	return nil
}

func WithProgressLog() Option {
	return func(opts *options) error {
		opts.logProgress = true
		return nil
	}
}

func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}

// WithHeaders adds headers to the outgoing request.
func WithHeaders(h http.Header) Option {
	return func(opts *options) error {
		if opts.config.Header == nil {
			opts.config.Header = make(http.Header, len(h))
		}
		for k, vs := range h {
			for _, v := range vs {
				opts.config.Header.Add(k, v)
			}
		}
		return nil
	}
}

// WithFollowRedirects overrides the client's redirect behaviour for this request.
func WithFollowRedirects(follow bool) Option {
	return func(opts *options) error {
		opts.config.FollowRedirects = &follow
		return nil
	}
}

// WithCookies attaches cookies to the outgoing request.
func WithCookies(cookies ...*http.Cookie) Option {
	return func(opts *options) error {
		opts.config.Cookies = append(opts.config.Cookies, cookies...)
		return nil
	}
}

// WithNoResponseCache bypasses the in-memory response cache. It only
// affects gets.
func WithNoResponseCache() Option {
	return func(opts *options) error {
		opts.config.NoResponseCache = true
		return nil
	}
}

// WithIdentityEncoding asks the server not to compress the body, which
// makes servers that otherwise omit it send a usable Content-Length.
func WithIdentityEncoding() Option {
	return WithHeaders(http.Header{"Accept-Encoding": {"identity"}})
}

// WithBatch runs the download as the first job of a new [Batch] limited
// to maxConcurrent downloads at a time. If maxConcurrent <= 0, concurrency
// is unlimited.
func WithBatch(maxConcurrent int) Option {
	return func(opts *options) error {
		if opts.batch != nil {
			return errors.New("batch already configured")
		}
		opts.batch = NewBatch(maxConcurrent)
		return nil
	}
}

func inBatch(b *Batch) Option {
	return func(opts *options) error {
		if opts.batch != nil {
			return errors.New("WithBatch cannot be used with Result.Add")
		}
		opts.batch = b
		return nil
	}
}

// BatchOf validates optFns and returns the batch they select, or nil if
// WithBatch was not given.
func BatchOf(optFns ...Option) (*Batch, error) {
	opts, err := apply(optFns)
	if err != nil {
		return nil, err
	}

	return opts.batch, nil
}

// RequestSettings validates optFns and returns the transport settings
// they configure. Progress, checksum and batch options are ignored.
func RequestSettings(optFns ...Option) (RequestConfig, error) {
	opts, err := apply(optFns)
	if err != nil {
		return RequestConfig{}, err
	}

	return opts.config, nil
}

func apply(optFns []Option) (options, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return options{}, fmt.Errorf("applying option: %w", err)
		}
	}

	return opts, nil
}

// EngineOption configures an [Engine].
type EngineOption func(*Engine) error

// WithCache sets the staging cache. Without one, downloads always write
// the destination directly.
func WithCache(c *Cache) EngineOption {
	return func(e *Engine) error {
		if c == nil {
			return errors.New("cache must not be nil")
		}
		e.cache = c
		return nil
	}
}

// WithFilter enables duplicate-request handling through f.
func WithFilter(f *Filter) EngineOption {
	return func(e *Engine) error {
		if f == nil {
			return errors.New("filter must not be nil")
		}
		e.filter = f
		return nil
	}
}

// WithLogger injects a custom [slog.Logger].
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		e.logger = logger
		return nil
	}
}

// WithTracerProvider sets the provider used to trace download attempts.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) error {
		if tp == nil {
			return errors.New("tracer provider must not be nil")
		}
		e.tracer = tp.Tracer(tracerName)
		return nil
	}
}
