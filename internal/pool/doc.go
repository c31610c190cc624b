// Package pool runs the worker slots that turn queued jobs into
// terminal ones. Slots wake on transport signals or poll ticks, claim a
// job through the store's conditional update, execute it through the
// engine with a heartbeat and a deadline, and always record a terminal
// outcome. Capacity can be adjusted at runtime within the configured
// bounds without restarting the daemon.
package pool
