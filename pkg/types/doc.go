// Package types defines the shared Go types that cross the boundary of the
// conveyor twin core: sensor snapshots coming in, and operational state,
// alerts, maintenance predictions and simulation results going out to the
// sinks (bus, storage, HTTP console).
//
// Enumerations (Severity, AlertType, Urgency, Mode) are closed sets of typed
// constants with text marshalling, so JSON and YAML carry the upper-case
// names used on the wire while Go code switches over typed values.
package types
