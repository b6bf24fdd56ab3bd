// Package store provides the durable state of the identity registry.
//
// The store is layered on a Backend, the persistent key-value surface the
// host provides. Three backends ship with the package: SQLite (the default,
// on disk), memory (tests and dry runs) and Redis.
//
// # Snapshot discipline
//
// An invocation calls Load once, mutates the returned Snapshot in memory and
// either calls Commit or drops the snapshot. Commit is the only point where
// durable state changes and it applies every write in one atomic batch, so
// an invocation's effects are all-or-nothing. Invocations are serialised by
// the host; the store takes no locks of its own.
//
// # Key layout (schema version 2)
//
//	meta/schema_version   decimal schema version
//	meta/next_seq         next global sequence id
//	meta/generation       commit counter, guards against stale snapshots
//	record/<hex account>  canonical JSON identity record
//
// Schema version 1 kept records under identity/<hex account> with plain
// string attribute values and no sequence ids. Upgrade rewrites it.
//
// # SQLite configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
