// Package config loads the sleep-machine YAML settings, applies secrets from the
// environment and validates the result so the rest of the code can assume a
// well-formed configuration.
package config
