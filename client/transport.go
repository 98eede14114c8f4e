package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/adamwoolhether/netlite/client/download"
)

// httpOpener implements [download.Opener] over net/http.
type httpOpener struct {
	follow        *http.Client
	noFollow      *http.Client
	followDefault bool
	readTimeout   time.Duration
	propagator    propagation.TextMapPropagator
}

func (o *httpOpener) Open(ctx context.Context, url string, cfg download.RequestConfig) (*download.Response, error) {
	follow := o.followDefault
	if cfg.FollowRedirects != nil {
		follow = *cfg.FollowRedirects
	}
	hc := o.noFollow
	if follow {
		hc = o.follow
	}

	ctx, cancel := context.WithCancelCause(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("instantiating request: %w", err)
	}
	for k, vs := range cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for _, cookie := range cfg.Cookies {
		req.AddCookie(cookie)
	}
	o.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	wd := newWatchdog(o.readTimeout, cancel)

	resp, err := hc.Do(req)
	if err != nil {
		wd.stop()
		err = timeoutCause(ctx, err)
		cancel(nil)
		return nil, fmt.Errorf("exec http do: %w", err)
	}

	return &download.Response{
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		Header:        resp.Header,
		Body: &idleBody{
			ctx:    ctx,
			body:   resp.Body,
			wd:     wd,
			cancel: cancel,
		},
	}, nil
}

// watchdog cancels a request once it has been idle for d.
type watchdog struct {
	d     time.Duration
	timer *time.Timer
}

func newWatchdog(d time.Duration, cancel context.CancelCauseFunc) *watchdog {
	return &watchdog{
		d:     d,
		timer: time.AfterFunc(d, func() { cancel(ErrReadTimeout) }),
	}
}

func (w *watchdog) kick() { w.timer.Reset(w.d) }
func (w *watchdog) stop() { w.timer.Stop() }

// timeoutCause marks err as a read timeout if the watchdog fired.
func timeoutCause(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrReadTimeout) {
		return fmt.Errorf("%w: %w", ErrReadTimeout, err)
	}

	return err
}

// idleBody restarts the watchdog before every read.
type idleBody struct {
	ctx    context.Context
	body   io.ReadCloser
	wd     *watchdog
	cancel context.CancelCauseFunc
}

func (b *idleBody) Read(p []byte) (int, error) {
	b.wd.kick()

	n, err := b.body.Read(p)
	if err != nil && err != io.EOF {
		err = timeoutCause(b.ctx, err)
	}

	return n, err
}

func (b *idleBody) Close() error {
	b.wd.stop()
	err := b.body.Close()
	b.cancel(nil)

	return err
}

// newTransport clones the default transport with a bounded dial.
func newTransport(connectTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.TLSHandshakeTimeout = connectTimeout

	return t
}
