// Package notifications delivers job and alert events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set.
// Job failure and alert messages can be suppressed individually so a
// noisy deployment can keep only the notifications it wants.
//
// All pool and monitor code depends only on the Service interface, so
// alternative transports plug in without touching callers.
package notifications
