// Package model defines shared data types used across the FMP ingestion pipeline.
//
// Conventions:
//   - Entity ids are snake_case and double as default table names
//   - Symbols are upper-case, trimmed provider tickers (e.g. "AAPL", "TTE.PA")
//   - Time-series rows are keyed by (symbol, time field)
//   - Timestamps are time.Time in UTC; date fields are truncated to midnight UTC
package model
