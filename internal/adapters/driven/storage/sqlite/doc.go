// Package sqlite provides the SQLite implementation of the document store
// and the query log.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. One Store satisfies both driven.DocumentStore and
// driven.QueryLogStore over a single database file.
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files; only the up files are applied.
//
// Timestamps are stored as Unix nanoseconds so ordering is exact.
//
// # Data Location
//
// By default, the database is stored at ~/.ragkb/data/ragkb.db
package sqlite
