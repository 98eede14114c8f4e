package download

import (
	"context"
	"io"
	"net/http"
)

// Opener opens a GET request for a URL. Connection setup, TLS,
// timeouts and redirects are the Opener's concern; the engine only
// inspects the status code, the declared length and the body.
type Opener interface {
	Open(ctx context.Context, url string, cfg RequestConfig) (*Response, error)
}

// OpenerFunc adapts a function to the [Opener] interface.
type OpenerFunc func(ctx context.Context, url string, cfg RequestConfig) (*Response, error)

func (f OpenerFunc) Open(ctx context.Context, url string, cfg RequestConfig) (*Response, error) {
	return f(ctx, url, cfg)
}

// Response is an opened GET request. The caller must close Body.
type Response struct {
	StatusCode int
	// ContentLength is the declared body length, or -1 if unknown.
	ContentLength int64
	Header        http.Header
	Body          io.ReadCloser
}

// RequestConfig carries per-request transport settings.
type RequestConfig struct {
	// Header is added to the outgoing request.
	Header  http.Header
	Cookies []*http.Cookie
	// FollowRedirects overrides the client's redirect behaviour when non-nil.
	FollowRedirects *bool
	// NoResponseCache bypasses the in-memory response cache of gets.
	NoResponseCache bool
}
