// Package postgres provides a PostgreSQL mailqueue.Store built on lib/pq.
//
// Status transitions are single conditional UPDATEs guarded by status IN (...).
// Stuck attempts are reclaimed with one UPDATE ... RETURNING over rows locked with
// FOR UPDATE SKIP LOCKED. Dispatch order is priority, send_at NULLS FIRST, queued_at, id.
//
// Migrate applies the embedded migrations that create the emails table.
package postgres
