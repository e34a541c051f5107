// Package engine orchestrates one submission end to end: resolve the
// propagation set, build the job graph, hand the batch to the farm and
// record it in the ledger.
//
// # Critical Patterns
//
// Phased failure. Every failed call surfaces exactly one *PhaseError
// naming the stage that broke (config, scan, versions, build, submit,
// ledger). Callers branch on the phase, not on error strings.
//
// Pure planning. Plan and PlanUpdate only read the project tree; calling
// them twice against unchanged trees yields graphs with equal
// fingerprints. All writes (spool files, ledger rows) happen in the
// submit variants, after the graph is final.
//
// Zero work is success. A request where nothing is stale produces an
// empty graph; the submit variants return no job IDs and touch neither
// the farm nor the ledger.
//
// # Injected Time and Tokens
//
// Batch names embed a timestamp from the injected Clock and ledger rows
// key on a token from the injected TokenGenerator. Production wiring uses
// SystemClock and UUIDv7Generator; tests inject fixed values so batch
// names and tokens are stable.
package engine
