// Package dedup answers whether a job identifier has already been published.
//
// A Store keeps the active working set (recently posted identifiers) in
// memory and in a single JSON file. When the set grows past the archival
// threshold, Save moves the lexicographically smallest identifiers into the
// current month's archive partition before writing the active file.
// Identifiers found only in an archive partition go through the reopening
// policy, which decides whether the posting may be published again.
//
// Every write uses the persistence package's write-to-temp, fsync, rename and
// read-back protocol. A read-back mismatch on the active file is fatal: Save
// returns an error for which IsFatal reports true and the process must stop.
//
// A Store is meant for one load, check/mark, save cycle per process run.
// Cross-process exclusion is the caller's job (see pkg/file.AcquireLock).
package dedup
