// Package store provides the SQLite-backed ledger of vouchers submitted on
// this node.
//
// The ledger holds:
//   - Vouchers: one row per distinct voucher number, plus redemption state
//   - Tokens: the stable random tokens generated for a voucher's redemption
//   - Passes: passes obtained from redemption and not yet spent
//
// # Idempotency
//
// vouchers.number is the primary key and every voucher insert is a single
// INSERT ... ON CONFLICT(number) DO NOTHING. Repeated or concurrent adds of the
// same number therefore leave exactly one row, without any application lock.
//
// # Schema Version
//
// The schema_version table holds a single integer stamped when the database is
// created. Opening a database checks it against the version the caller
// requires before any ledger table is read or written, and before the journal
// is switched to WAL. A rejected database is left as it was. The stamp and
// the tables are created in one transaction, so a failed open never leaves a
// database claiming a version whose tables are missing.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Tokens must reference a known voucher
//   - _txlock=immediate: Write transactions take the write lock up front
package store
