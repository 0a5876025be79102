// Package sqlite provides an index backend on a single SQLite database.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. Every index lives in the same documents table, keyed by
// (index_name, doc_id). User fields are stored as a JSON object and queried
// through json_each, so array fields match when any element matches.
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files.
//
// # Text matching
//
// Phrase-prefix and token matching run through two scalar functions,
// mahuta_phrase_prefix and mahuta_contains, registered with the driver
// before the first connection opens.
//
// # Thread Safety
//
// All operations are thread-safe. The index relies on database-level
// locking provided by SQLite in WAL mode.
package sqlite
