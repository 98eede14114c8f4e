package throttle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRoundTripper_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		rps    int
		burst  int
		expErr error
	}{
		{
			name:   "Invalid RPS (zero)",
			rps:    0,
			burst:  10,
			expErr: ErrMustNotBeZero,
		},
		{
			name:   "Invalid RPS (negative)",
			rps:    -5,
			burst:  10,
			expErr: ErrMustNotBeZero,
		},
		{
			name:   "Invalid Burst (zero)",
			rps:    10,
			burst:  0,
			expErr: ErrMustNotBeZero,
		},
		{
			name:  "Valid input",
			rps:   10,
			burst: 20,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rt, err := NewRoundTripper(Config{RPS: tc.rps, Burst: tc.burst}, nil, http.DefaultTransport)

			if tc.expErr != nil {
				if !errors.Is(err, tc.expErr) {
					t.Errorf("exp err %v; got: %v", tc.expErr, err)
				}
				return
			}

			if err != nil {
				t.Errorf("exp nil err, got: %v", err)
			}
			if rt == nil {
				t.Error("exp non-nil RoundTripper")
			}
		})
	}
}

func countingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	return ts, &hits
}

func TestThrottle_Behavior(t *testing.T) {
	testCases := []struct {
		name        string
		rps         int
		burst       int
		numRequests int
		reqTimeout  time.Duration
		expErrs     int
		minDuration time.Duration
		maxDuration time.Duration
	}{
		{
			name:        "High Limits - Concurrent Load",
			rps:         10000,
			burst:       100,
			numRequests: 50,
			maxDuration: 200 * time.Millisecond,
		},
		{
			name:        "Low Limit - Exceed Burst & Timeout Waiting",
			rps:         5,
			burst:       2,
			numRequests: 5, // 2 use burst, the rest would wait past the timeout
			reqTimeout:  50 * time.Millisecond,
			expErrs:     3,
		},
		{
			name:        "Low Limit - Exceed Burst - Succeed Waiting",
			rps:         10,
			burst:       5,
			numRequests: 8, // (8-5) / 10 RPS = 0.3s of waiting
			reqTimeout:  time.Second,
			minDuration: 250 * time.Millisecond,
		},
		{
			name:        "Low Limit - Within Burst",
			rps:         5,
			burst:       5,
			numRequests: 5,
			maxDuration: 100 * time.Millisecond,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts, hits := countingServer(t)

			rt, err := NewRoundTripper(Config{RPS: tc.rps, Burst: tc.burst}, func() *slog.Logger { return nil }, http.DefaultTransport)
			if err != nil {
				t.Fatal(err)
			}
			client := &http.Client{Transport: rt}

			var wg sync.WaitGroup
			errs := make([]error, tc.numRequests)
			start := time.Now()

			for i := range tc.numRequests {
				wg.Add(1)
				go func() {
					defer wg.Done()

					ctx := t.Context()
					if tc.reqTimeout > 0 {
						var cancel context.CancelFunc
						ctx, cancel = context.WithTimeout(ctx, tc.reqTimeout)
						defer cancel()
					}

					req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
					if err != nil {
						errs[i] = err
						return
					}

					resp, err := client.Do(req)
					if err != nil {
						errs[i] = err
						return
					}
					resp.Body.Close()
				}()
			}

			wg.Wait()
			duration := time.Since(start)

			var failed int
			for _, err := range errs {
				if err == nil {
					continue
				}
				failed++
				if !errors.Is(err, ErrWaitingFailed) {
					t.Errorf("expected ErrWaitingFailed, got: %v", err)
				}
			}

			if failed != tc.expErrs {
				t.Errorf("expected %d failed requests; got %d", tc.expErrs, failed)
			}
			if got := int(hits.Load()); got != tc.numRequests-failed {
				t.Errorf("expected %d calls to reach the server; got %d", tc.numRequests-failed, got)
			}
			if tc.minDuration > 0 && duration < tc.minDuration {
				t.Errorf("expected throttling to take at least %v, took %v", tc.minDuration, duration)
			}
			if tc.maxDuration > 0 && duration > tc.maxDuration {
				t.Errorf("expected to finish within %v, took %v", tc.maxDuration, duration)
			}
		})
	}
}

func TestThrottle_PreCancelledContext(t *testing.T) {
	ts, hits := countingServer(t)

	rt, err := NewRoundTripper(Config{RPS: 20, Burst: 10}, nil, http.DefaultTransport)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = rt.RoundTrip(req)
	if !errors.Is(err, ErrContextEnded) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected ErrContextEnded wrapping context.Canceled, got: %v", err)
	}
	if hits.Load() != 0 {
		t.Error("cancelled request must not reach the server")
	}
}

func TestThrottle_PerHostBuckets(t *testing.T) {
	a, _ := countingServer(t)
	b, _ := countingServer(t)

	rt, err := NewRoundTripper(Config{RPS: 1, Burst: 1}, nil, http.DefaultTransport)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Transport: rt}

	get := func(url string, timeout time.Duration) error {
		ctx, cancel := context.WithTimeout(t.Context(), timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}

	if err := get(a.URL, time.Second); err != nil {
		t.Fatalf("first request to host a: %v", err)
	}
	if err := get(b.URL, 100*time.Millisecond); err != nil {
		t.Errorf("host b must have its own bucket: %v", err)
	}
	if err := get(a.URL, 100*time.Millisecond); !errors.Is(err, ErrWaitingFailed) {
		t.Errorf("second request to host a should be throttled, got: %v", err)
	}
}
