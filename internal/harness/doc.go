// Package harness runs declarative planning scenarios for tests.
//
// A scenario YAML file describes a department model, a fixture tree
// (workfiles and exports with relative mtimes, plus embedded context
// inputs) and one request. The harness materializes the tree into a
// temp directory with controlled modification times, compiles the
// configuration, plans the request through the engine and checks the
// resulting graph against the scenario's expectations or a golden
// rendering.
//
// Scenarios only plan. Nothing is spooled or recorded, so runs are
// hermetic and repeatable.
package harness
