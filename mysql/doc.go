// Package mysql provides a MySQL 8.0+ mailqueue.Store.
//
// The store uses:
//   - a single conditional UPDATE per status transition (status IN (...) guard)
//   - READ COMMITTED + SELECT ... FOR UPDATE when reclaiming stuck attempts
//   - ORDER BY priority, send_at, queued_at, id for dispatch order (NULL send_at sorts first)
//
// The DSN must set parseTime=true. See Schema for the table definition.
package mysql
