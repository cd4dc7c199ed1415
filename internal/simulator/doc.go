// Package simulator runs what-if scenarios against a copy of the twin's
// live state and keeps a bounded history of their results.
//
// The projection formulas live in package scenario; this package adds
// result identity, timing and history.
package simulator
