// Package daemon assembles the long-running overtoned process: the job
// ledger, artifact store, queue transport, worker pool, dispatcher,
// metrics monitor, and the HTTP API the CLI talks to. A lock file keeps
// a second daemon from racing the first over the same ledger.
package daemon
