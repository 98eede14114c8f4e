package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/netlite/client/download"
	"github.com/adamwoolhether/netlite/client/throttle"
)

const (
	// DefaultUserAgent is sent when no User-Agent is configured. Some
	// servers refuse requests that do not look like they come from a browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 30 * time.Second

	// DefaultResponseCacheSize is the number of get responses kept for
	// revalidation.
	DefaultResponseCacheSize = 128
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	connectTimeout    time.Duration
	readTimeout       time.Duration
	userAgent         string
	throttle          *throttle.Config
	noFollowRedirects bool
	logger            *slog.Logger
	cache             *download.Cache
	stagingDir        string
	filter            *download.Filter
	dedupPolicy       *download.Policy
	tracerProvider    trace.TracerProvider
	propagator        propagation.TextMapPropagator
	responseCacheSize *int
}

// WithClient replaces the default [http.Client] used by the [Client].
// Its Transport, Timeout and redirect policy are honoured; the connect
// timeout only applies to the default transport.
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the overall request timeout on the underlying [http.Client].
// It bounds the whole exchange, body included, so large downloads usually
// want [WithReadTimeout] instead.
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithConnectTimeout bounds dialing a connection. Zero or negative
// values select [DefaultConnectTimeout].
func WithConnectTimeout(d time.Duration) Option {
	return func(c *options) error {
		c.connectTimeout = d
		return nil
	}
}

// WithReadTimeout bounds how long a request may go without receiving
// any data, both while waiting for the response headers and between
// reads of the body. Zero or negative values select [DefaultReadTimeout].
func WithReadTimeout(d time.Duration) Option {
	return func(c *options) error {
		c.readTimeout = d
		return nil
	}
}

// WithUserAgent replaces [DefaultUserAgent] on all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		if header == "" {
			return errors.New("user agent must not be empty")
		}
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables per-host token-bucket rate limiting with the given
// requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		cfg := throttle.Config{RPS: rps, Burst: burst}
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.throttle = &cfg
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects
// unless a request overrides it with [WithFollowRedirects].
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithCache shares an existing cache configuration with the [Client].
func WithCache(cache *download.Cache) Option {
	return func(c *options) error {
		if cache == nil {
			return errors.New("cache must not be nil")
		}
		c.cache = cache
		return nil
	}
}

// WithStagingDir enables staged downloads through dir. It is ignored
// when [WithCache] is also given.
func WithStagingDir(dir string) Option {
	return func(c *options) error {
		if dir == "" {
			return fmt.Errorf("%w: staging directory must not be empty", download.ErrConfiguration)
		}
		c.stagingDir = dir
		return nil
	}
}

// WithFilter enables duplicate-request handling through a shared filter.
func WithFilter(f *download.Filter) Option {
	return func(c *options) error {
		if f == nil {
			return errors.New("filter must not be nil")
		}
		c.filter = f
		return nil
	}
}

// WithDedupPolicy enables duplicate-request handling with a filter
// private to the [Client].
func WithDedupPolicy(p download.Policy) Option {
	return func(c *options) error {
		if p > download.PolicyReject {
			return fmt.Errorf("%w: unknown dedup policy %d", download.ErrConfiguration, p)
		}
		c.dedupPolicy = &p
		return nil
	}
}

// WithTracerProvider traces gets and downloads through tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *options) error {
		if tp == nil {
			return errors.New("tracer provider must not be nil")
		}
		c.tracerProvider = tp
		return nil
	}
}

// WithPropagator injects trace context into outgoing requests with p
// instead of the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *options) error {
		if p == nil {
			return errors.New("propagator must not be nil")
		}
		c.propagator = p
		return nil
	}
}

// WithResponseCacheSize sets how many get responses are kept for
// revalidation. Zero disables the response cache.
func WithResponseCacheSize(n int) Option {
	return func(c *options) error {
		if n < 0 {
			return errors.New("response cache size must not be negative")
		}
		c.responseCacheSize = &n
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
// A User-Agent set on the request itself takes precedence.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return ua.base.RoundTrip(r)
	}

	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}
