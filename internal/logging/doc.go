// Package logging wires log/slog into Overtone: handler construction for
// console and JSON output (optionally fanned out to a log file), typed
// attribute helpers, standardized field names, and context-based logger
// enrichment so job, project, and worker identifiers flow through every
// record emitted while a slot works a job.
package logging
