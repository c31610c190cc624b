// Package dispatch is the submission and control surface for jobs. It
// validates requests, pins generation inputs to concrete artifacts,
// snapshots settings, and relies on the job store for every admission
// and transition decision, so dispatcher restarts lose nothing.
package dispatch
