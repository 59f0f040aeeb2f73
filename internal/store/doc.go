// Package store provides SQLite-backed durable storage for the quorum
// engine's event log.
//
// The store is append-only:
//   - Events: every engine event, keyed by its logical seq
//   - Owners: the registry the log was produced under, in registration order
//   - Settings: the approval threshold
//
// The log is the source of truth. Engine state is never stored directly;
// it is rebuilt with engine.Replay from ReadEvents.
//
// # Critical Patterns
//
// Logical ordering:
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - All reads are ORDER BY seq ASC
//
// Idempotent appends:
//   - Redelivering the event already stored at a seq is a no-op
//   - A different event at a taken seq fails with ErrSeqConflict
//
// Exclusive writers:
//   - Every transaction is BEGIN IMMEDIATE (_txlock=immediate)
//   - Begin returns a Tx holding the write lock until Commit or Rollback;
//     a second Begin on the same database waits for it
//
// Fixed registry:
//   - SaveRegistry refuses to overwrite a different owner set or threshold;
//     owner rotation is not supported
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
