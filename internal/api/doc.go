// Package api defines the JSON payloads exchanged between the daemon's
// HTTP surface and the CLI, the converters from internal types, and the
// client the CLI uses to reach a running daemon.
package api
