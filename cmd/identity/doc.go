// Package identity owns predixa principals: the User model, role enumeration, and the
// user directory the session layer reads from.
//
// Two Directory implementations exist and are selected by configuration, never mixed at runtime:
//   - PostgresStore, backed by the users table.
//   - DemoDirectory, an in-memory table seeded at startup for local runs without a database.
package identity
