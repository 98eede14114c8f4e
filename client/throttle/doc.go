// Package throttle provides an [http.RoundTripper] that rate-limits
// outbound HTTP requests per host using a token-bucket algorithm from
// [golang.org/x/time/rate].
//
// # Usage
//
// Wrap an existing transport with [NewRoundTripper]:
//
//	rt, err := throttle.NewRoundTripper(
//		throttle.Config{RPS: 10, Burst: 5},
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// Each host gets its own bucket, so a slow mirror does not hold back
// requests to other servers. When a host's limit is exceeded, requests
// to it block until a token becomes available or the request context
// is cancelled.
package throttle
