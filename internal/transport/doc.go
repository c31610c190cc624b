// Package transport delivers job wake-up signals to workers. Signals
// are hints, not state: the job store remains the single authority on
// which jobs exist and who claims them, so a lost or duplicated signal
// is harmless. Two implementations exist, an in-process channel queue
// and a Redis-backed one for multi-process deployments.
package transport
