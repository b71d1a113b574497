// Package server wires the HTTP surface: websocket endpoints for the room
// and widget channels, the REST API for presets and sessions, and the
// health and metrics endpoints.
package server
