// Package ledger persists jobs and generations in SQLite and is the
// single source of truth for job state.
//
// The Store manages database connections, schema initialization, the
// job state machine (queued -> running -> completed|failed), heartbeat
// tracking, stale-job discovery, and stats queries. Two statements carry
// the system's correctness guarantees: Submit's conditional insert
// enforces at most one in-flight job per project, and Claim's
// conditional update guarantees exactly one slot wins a queued job.
// Terminal states are immutable and jobs are never deleted; they remain
// as audit records after their generations are removed.
//
// The database schema is versioned via schema.go; bump schemaVersion
// when schema.sql changes.
package ledger
