// Package migration applies hash-stamped migration logs to embedded SQLite
// databases.
//
// A migration log is an ordered list of steps. Each step carries the SQL
// statements produced for one migration folder and a cumulative hash that
// fingerprints that step together with every step before it, so the hash of
// the last step identifies the fully migrated schema. Inserting, removing or
// reordering any earlier step changes that fingerprint.
//
// The package provides:
//
//   - Log and Step, the transport format shared with the log compiler
//   - ParseLog, which validates raw JSON against the log schema before decoding
//   - Runner, which compares the last applied hash kept in a kv.Storage with
//     the log and applies it at most once per database lifetime
//   - SQLiteExecutor, the driver-level batch that records applied steps in the
//     __clientdb_migrations table
//   - Compile, which turns a directory of {version}_{description}.sql files into
//     a Log
//
// Example usage:
//
//	runner := migration.NewRunner(logger)
//	state := &migration.State{}
//	if err := runner.Run(ctx, handle, opts, state, "client"); err != nil {
//		return fmt.Errorf("migrate client database: %w", err)
//	}
package migration
