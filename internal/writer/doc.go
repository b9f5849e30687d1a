// Package writer turns decoded provider records into storage rows and
// writes them one page per transaction.
//
// Transformation:
//   - Values are coerced to the field kind (decimal prices, dates at
//     midnight UTC, integer volumes)
//   - Symbols are trimmed and upper-cased
//   - Duplicate natural keys within a page keep the later fetch
//   - Time-series rows at or before the stored watermark are dropped as
//     duplicates
package writer
