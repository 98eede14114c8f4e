package throttle

import (
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

var (
	// ErrMustNotBeZero rejects a Config with a non-positive rate or burst.
	ErrMustNotBeZero = errors.New("must be greater than zero")
	// ErrWaitingFailed means the request deadline ends before the host
	// has a token to spare.
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Config sets the rate applied to each request host separately.
type Config struct {
	// RPS is the sustained number of requests per second per host.
	RPS int
	// Burst is the number of requests a host may receive back to back.
	Burst int
}

// Validate reports whether c describes a usable limiter.
func (c Config) Validate() error {
	if c.RPS <= 0 || c.Burst <= 0 {
		return fmt.Errorf("rps[%d] and burst[%d] %w", c.RPS, c.Burst, ErrMustNotBeZero)
	}

	return nil
}

func (c Config) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(c.RPS), c.Burst)
}
