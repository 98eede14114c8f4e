package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/netlite/client/download"
	"github.com/adamwoolhether/netlite/client/throttle"
)

// Client retrieves HTTP resources into memory or into files.
// It owns a [download.Engine] for file downloads and a bounded
// response cache for gets. A Client is safe for concurrent use.
type Client struct {
	opener    *httpOpener
	engine    *download.Engine
	cache     *download.Cache
	responses *responseCache
	logger    *slog.Logger
	tracer    trace.Tracer
}

func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	client := &Client{logger: logger}

	// Copy the caller's client so building never mutates it.
	hc := &http.Client{}
	if opts.client != nil {
		cpy := *opts.client
		hc = &cpy
	}
	if opts.timeout != nil {
		hc.Timeout = *opts.timeout
	}

	connectTimeout := opts.connectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	readTimeout := opts.readTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case hc.Transport != nil:
		transport = hc.Transport
	default:
		transport = newTransport(connectTimeout)
	}

	ua := opts.userAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	transport = userAgent{value: ua, base: transport}

	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(*opts.throttle, func() *slog.Logger { return client.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	hc.Transport = transport

	noFollow := *hc
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	propagator := opts.propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}

	client.opener = &httpOpener{
		follow:        hc,
		noFollow:      &noFollow,
		followDefault: !opts.noFollowRedirects,
		readTimeout:   readTimeout,
		propagator:    propagator,
	}

	cache := opts.cache
	if cache == nil {
		cache = download.NewCache(logger)
		if opts.stagingDir != "" {
			if err := cache.SetDir(opts.stagingDir); err != nil {
				return nil, fmt.Errorf("configuring staging cache: %w", err)
			}
			if err := cache.SetStaging(true); err != nil {
				return nil, fmt.Errorf("configuring staging cache: %w", err)
			}
		}
	}
	client.cache = cache

	size := DefaultResponseCacheSize
	if opts.responseCacheSize != nil {
		size = *opts.responseCacheSize
	}
	if size > 0 {
		client.responses = newResponseCache(size)
	}

	tp := opts.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	client.tracer = tp.Tracer(tracerName)

	engineOpts := []download.EngineOption{
		download.WithCache(cache),
		download.WithLogger(logger),
		download.WithTracerProvider(tp),
	}
	switch {
	case opts.filter != nil:
		engineOpts = append(engineOpts, download.WithFilter(opts.filter))
	case opts.dedupPolicy != nil:
		engineOpts = append(engineOpts, download.WithFilter(download.NewFilter(*opts.dedupPolicy, logger)))
	}

	engine, err := download.NewEngine(client.opener, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("configuring download engine: %w", err)
	}
	client.engine = engine

	return client, nil
}

// Cache returns the client's cache configuration. Changes apply to
// downloads started afterwards.
func (c *Client) Cache() *download.Cache { return c.cache }

// Filter returns the client's duplicate filter, or nil if duplicate
// requests are not tracked.
func (c *Client) Filter() *download.Filter { return c.engine.Filter() }

// Get fetches url into memory. Only the request options of optFns
// (headers, cookies, redirects, response cache) apply.
//
// When the response cache is enabled, a response carrying an ETag or
// Last-Modified validator is kept and the next Get of the same URL
// revalidates it; a 304 Not Modified answer serves the kept body.
func (c *Client) Get(ctx context.Context, url string, optFns ...RequestOption) ([]byte, error) {
	if url == "" {
		return nil, errors.New("url must not be empty")
	}

	cfg, err := download.RequestSettings(optFns...)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", url)),
	)
	defer span.End()

	body, cached, err := c.get(ctx, url, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Bool("http.response.cached", cached),
		attribute.Int("http.response.body.size", len(body)),
	)

	return body, err
}

func (c *Client) get(ctx context.Context, url string, cfg download.RequestConfig) ([]byte, bool, error) {
	useCache := c.responses != nil && c.cache.UseGetCache() && !cfg.NoResponseCache

	var entry *cachedResponse
	if useCache {
		if e, ok := c.responses.get(url); ok {
			entry = e
			cfg.Header = entry.conditional(cfg.Header)
		}
	}

	resp, err := c.opener.Open(ctx, url, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%w: opening %s: %w", download.ErrDownloadCancelled, url, err)
		}
		return nil, false, fmt.Errorf("%w: opening %s: %w", download.ErrNetwork, url, err)
	}

	discardBody := true
	defer func() {
		if discardBody {
			if _, err := io.Copy(io.Discard, resp.Body); err != nil {
				c.logger.Error("failed to discard unused body", "error", err)
			}
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode == http.StatusNotModified && entry != nil {
		c.logger.Debug("serving revalidated response", "url", url)
		return bytes.Clone(entry.body), true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, download.ReadStatusError(resp.StatusCode, resp.Body)
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(min(resp.ContentLength, maxPrealloc)))
	}

	discardBody = false
	n, err := download.Transfer(&buf, resp.Body, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%w: reading body: %w", download.ErrDownloadCancelled, err)
		}
		return nil, false, fmt.Errorf("%w: reading body: %w", download.ErrNetwork, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return nil, false, &download.Error{
			Err:    download.ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", resp.ContentLength, n),
		}
	}

	body := buf.Bytes()
	if useCache {
		if e := newCachedResponse(resp.Header, body); e != nil {
			c.responses.add(url, e)
		} else {
			c.responses.remove(url)
		}
	}

	return body, false, nil
}

// Download fetches url into destPath, through the staging cache when
// it is enabled. See [download.Engine.Download] for the guarantees on
// failure.
func (c *Client) Download(ctx context.Context, url, destPath string, optFns ...RequestOption) (download.Report, error) {
	return c.engine.Download(ctx, url, destPath, optFns...)
}

// ProgressBuffer is the number of intermediate events a
// [Client.DownloadProgress] channel holds for a slow receiver.
const ProgressBuffer = 64

// DownloadProgress starts downloading url into destPath and returns a
// channel of progress fractions. The channel is closed after the single
// event with Final set. Once [ProgressBuffer] events are queued, further
// intermediate events are dropped rather than stalling the transfer, and
// the final event reports how many in Dropped. The caller must drain the
// channel until it is closed.
func (c *Client) DownloadProgress(ctx context.Context, url, destPath string, optFns ...RequestOption) <-chan download.Event {
	events := make(chan download.Event, ProgressBuffer)

	go func() {
		defer close(events)

		var final bool
		var dropped int
		sink := func(ev download.Event) {
			if ev.Final {
				final = true
				ev.Dropped = dropped
				events <- ev
				return
			}
			select {
			case events <- ev:
			default:
				dropped++
			}
		}

		report, err := c.engine.Download(ctx, url, destPath, slices.Concat(optFns, []RequestOption{download.WithProgress(sink)})...)
		if !final {
			// Option validation failed before a sink was attached.
			events <- download.Event{Total: -1, Final: true, Status: report.Status, Err: err}
		}
	}()

	return events
}

// DownloadTo streams url into w without staging or duplicate filtering
// and returns the number of bytes written.
func (c *Client) DownloadTo(ctx context.Context, url string, w io.Writer, optFns ...RequestOption) (int64, error) {
	if url == "" {
		return 0, errors.New("url must not be empty")
	}

	return c.engine.Stream(ctx, url, w, optFns...)
}

// DownloadAsync starts downloading url into destPath in the background.
// With [WithBatch] the returned result also accepts further downloads
// that share the batch's concurrency limit.
func (c *Client) DownloadAsync(ctx context.Context, url, destPath string, optFns ...RequestOption) (*download.Result, error) {
	if destPath == "" {
		return nil, errors.New("destPath must not be empty")
	}

	b, err := download.BatchOf(optFns...)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = download.NewBatch(1)
	}

	work := func(ctx context.Context) (download.Report, error) {
		return c.engine.Download(ctx, url, destPath, optFns...)
	}

	return b.Go(ctx, work, c.DownloadAsync), nil
}
