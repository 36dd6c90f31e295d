// Package config provides the embedded default configuration for tether.
package config

import _ "embed"

// DefaultConfigYAML is the commented configuration written by
// `tether config create`.
//
//go:embed config.default.yaml
var DefaultConfigYAML []byte
