// Package config loads, validates, and normalizes Overtone configuration.
//
// Configuration is TOML with repository defaults applied before parsing,
// so a missing file yields a fully usable config. Paths are expanded
// (including ~) and made absolute during load. Validation enforces the
// cross-field constraints the daemon relies on, such as heartbeat
// timeout exceeding heartbeat interval and worker counts staying within
// the configured elastic bounds.
package config
