// Package persist stores readings, alerts and simulation results in
// PostgreSQL through database/sql and lib/pq.
//
// A reading whose metric was missing from the snapshot is written as NULL,
// never as zero.
package persist
