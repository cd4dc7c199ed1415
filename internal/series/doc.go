// Package series keeps a bounded in-memory history of operational state
// samples for trend analysis. Samples older than the retention window are
// evicted by a background loop; the oldest samples are also dropped when
// the store reaches capacity.
package series
