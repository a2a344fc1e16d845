// Package store provides Table, a generic in-memory record table used by the
// backend services to hold their entities for the lifetime of the process.
//
// A Table owns identity allocation: identities start at 1, increase by one per
// accepted insert, and are never reused, even after removal. Inserts run a
// caller-supplied validator against the live records before anything is
// mutated, so a rejected insert leaves both the table and the identity counter
// untouched.
//
// Removed records are tombstoned in place and skipped by every read. Once
// tombstones outnumber live records the slot slice is compacted.
//
// All methods are safe for concurrent use. Reads share a read lock; Add,
// Update and Remove take the write lock, which makes validation and identity
// assignment atomic together.
package store
