// Package config provides environment-based configuration.
//
// Reads settings from environment variables with sensible defaults and
// validates the required ones at startup.
package config
