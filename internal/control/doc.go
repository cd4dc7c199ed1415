// Package control runs the twin's sense-update cycle.
//
// Each Step reads one snapshot from the configured source, folds it into the
// twin, records the resulting state for trends and fans the state and
// alerts out to the optional sinks: metrics, notifier, message bus,
// persistence and view cache. A failed read skips the cycle; a failed sink
// is logged and does not stop the others.
package control
