// Package database is the PostgreSQL/TimescaleDB side of the ingester.
//
// It owns:
//   - connection strings and the pgx pool
//   - database creation with the timescaledb extension
//   - migrations for pipeline state (jobs, checkpoints, watermarks)
//   - Gateway, the storage.Gateway backed by one table per entity type
//
// Entity tables are derived from the catalog at startup rather than
// migrated, so adding an entity type needs no new migration. Time-series
// tables are converted to hypertables when timescaledb is installed.
package database
