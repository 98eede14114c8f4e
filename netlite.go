// Package netlite exposes the client builders.
package netlite

import (
	"fmt"

	"github.com/adamwoolhether/netlite/client"
	"github.com/adamwoolhether/netlite/config"
)

// NewClient instantiates a new *Client with the provided options.
// If not specified, the default http.Client and http.Transport are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}

// LoadClient builds a *Client from the configuration file at path and
// NETLITE_* environment variables. An empty path uses the defaults plus
// the environment. Options in extra are applied after the configuration.
func LoadClient(path string, extra ...client.Option) (*client.Client, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	opts, err := cfg.Options()
	if err != nil {
		return nil, fmt.Errorf("converting config: %w", err)
	}

	c, err := client.Build(append(opts, extra...)...)
	if err != nil {
		return nil, err
	}

	if err := cfg.ConfigureCache(c.Cache()); err != nil {
		return nil, fmt.Errorf("configuring cache: %w", err)
	}

	return c, nil
}
