// Package artifact persists audio blobs behind a small Store contract.
// The filesystem implementation is content-addressed (sha256), which
// makes puts idempotent and lets the retry wrapper repeat transient
// failures without risk of duplication. A managed object store can be
// dropped in behind the same interface.
package artifact
