// Package config loads netlite client settings from a YAML file and
// NETLITE_* environment variables.
//
// A file only needs the keys it changes:
//
//	read_timeout: 1m
//	dedup_policy: wait
//	cache:
//	  dir: /var/tmp/netlite
//	  staging: true
//	throttle:
//	  rps: 5
//	  burst: 10
//
// Environment variables override the file, and [Load] validates the
// merged result.
package config
