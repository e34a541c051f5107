// Package jobgraph models one submission's worth of farm work: a DAG of
// publish, build and notify jobs with explicit dependency edges.
//
// The graph is pure data. It knows nothing about spool formats or the
// render farm; the farm package consumes a finished graph and the engine
// package builds one per request. Construction enforces the structural
// invariants the farm cannot check for us:
//   - job names are unique within a graph
//   - every dependency edge names two existing jobs
//   - the edge set admits a topological order (no cycles)
//
// Violations are builder bugs, so AddJob and AddDependency fail hard
// rather than dropping the offending entry.
//
// Graphs are deterministic: iteration, topological order and the
// canonical fingerprint depend only on the jobs and edges added, never on
// map iteration order. Planning the same request against the same tree
// twice yields byte-identical fingerprints.
package jobgraph
