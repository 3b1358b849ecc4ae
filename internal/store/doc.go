// Package store provides persistent storage for keep using SQLite.
//
// # Architecture
//
// The package exposes narrow interfaces so consumers depend only on what
// they use:
//
//   - ActorStore: actor lookup, search, credential and location updates
//   - AliasStore: command aliases loaded by the alias cache
//   - AuditStore: append-only log of privileged actions
//
// SQLiteStore implements all of them; MockStore is an in-memory stand-in
// for tests with the same search semantics.
//
// # Search
//
// SearchActors is the single resolution path used by the control plane:
//
//   - "#12" returns actor 12 or nothing
//   - an exact, case-insensitive name returns that actor
//   - anything else returns every actor whose name starts with the query
//
// Deciding what zero or several matches mean is left to the caller.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as UTC text. Migrations run on open and check
// pragma_table_info before altering a table.
package store
