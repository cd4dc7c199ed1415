// Package twin maintains the live model of the conveyor.
//
// model.go holds the pure derivations: efficiency, anomaly detection,
// maintenance prediction and the operating mode transitions. twin.go holds
// the stateful Twin that merges each SensorSnapshot into the current
// OperationalState under a single lock.
//
// Readings missing from a snapshot never overwrite the last measured value;
// they are reported in OperationalState.Missing instead.
package twin
