// Package engine implements the audio transforms behind every job
// operation. The engine is deliberately pure: bytes in, bytes out, no
// filesystem or network access, so the same input and settings always
// produce the same output and tests can cover it without fixtures.
package engine
