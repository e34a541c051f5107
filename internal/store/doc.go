// Package store provides SQLite-backed durable storage for pipeline
// metadata that the filesystem trees cannot answer:
//
//   - Entity properties: authored key/value settings, merged
//     hierarchically along the URI ancestor chain (root first, the
//     deepest setting of a key wins). Custom variant lists ride on the
//     "variants" property.
//   - Submission ledger: one header row per batch handed to the farm
//     plus its jobs and their farm IDs, keyed by the submission token so
//     a retried recording is a no-op.
//
// # Critical Patterns
//
// Idempotent writes
//   - Every insert lands on its natural key with ON CONFLICT DO NOTHING
//     (properties upsert instead), so crash-and-retry never duplicates.
//
// Deterministic query results
//   - Ledger queries order by submitted_at DESC with the token as a
//     COLLATE BINARY tiebreaker; job rows keep submission order via an
//     explicit position column.
//
// Plan fingerprints
//   - Each ledger row stores the plan fingerprint, so operators can see
//     whether a retried submission replanned identically.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
