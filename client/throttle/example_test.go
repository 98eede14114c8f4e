package throttle_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/adamwoolhether/netlite/client/throttle"
)

// A host that has spent its burst makes further requests wait; a request
// whose deadline ends first fails without reaching the server.
func ExampleNewRoundTripper() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	rt, err := throttle.NewRoundTripper(throttle.Config{RPS: 1, Burst: 2}, nil, http.DefaultTransport)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	hc := &http.Client{Transport: rt}

	for i := range 3 {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)

		resp, err := hc.Do(req)
		cancel()
		if errors.Is(err, throttle.ErrWaitingFailed) {
			fmt.Printf("request %d: throttled\n", i)
			continue
		}
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		resp.Body.Close()
		fmt.Printf("request %d: %d\n", i, resp.StatusCode)
	}
	// Output:
	// request 0: 200
	// request 1: 200
	// request 2: throttled
}
