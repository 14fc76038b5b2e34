// Package storage is the document store behind channel mappings and stat counters.
//
// Documents are JSON objects grouped by table. A document is identified by the
// exact filter it was upserted with, so Upsert and Increment never create a
// second document for the same filter.
//
// Drivers:
//   - "memory": process-local maps (default; nothing survives a restart)
//   - "file": JSON snapshot + append-only journal
//   - "sqlite": modernc.org/sqlite, pure Go
//   - "postgres": pgx through database/sql, JSONB bodies
package storage
