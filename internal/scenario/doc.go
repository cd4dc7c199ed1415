// Package scenario holds the closed-form projection models used for what-if
// evaluation of the conveyor. Every function is pure: it takes a copy of the
// operational state as its baseline and returns an Outcome without touching
// live state. Both the twin's quick scenarios and the simulator call into
// this package, so each formula exists exactly once.
package scenario
