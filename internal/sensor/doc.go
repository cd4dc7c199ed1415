// Package sensor reads conveyor sensor values into SensorSnapshots.
//
// Gateway polls a field gateway's Prometheus text exposition over HTTP.
// OPCUA subscribes to tags on an OPC UA server and serves the latest fresh
// value of each. Both report a metric they could not obtain by leaving it
// out of the snapshot; a missing value is never reported as zero.
package sensor
