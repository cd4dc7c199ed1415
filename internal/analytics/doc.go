// Package analytics derives production KPIs from the twin: overall
// equipment effectiveness (OEE), per-metric trends and periodic reports.
//
// oee.go and trend.go hold pure functions; engine.go binds them to a live
// twin view and the series store.
package analytics
