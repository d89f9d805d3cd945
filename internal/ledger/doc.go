// Package ledger keeps a SQLite history of discovery runs.
//
// Each row records the scenario, the parameters, the outcome and, unless the
// run was fatal, the result document that was written. Rows are never
// updated; RecordRun ignores a second write with the same ID.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// The schema version is tracked in PRAGMA user_version.
package ledger
