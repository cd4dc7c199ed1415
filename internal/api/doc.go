// Package api implements the operator HTTP API of the conveyor twin.
//
// New(deps) returns an http.Handler that serves:
//
//	GET    /api/v1/health                        mode, data quality, last update
//	GET    /api/v1/state                         current OperationalState
//	GET    /api/v1/view                          state, alerts, maintenance and thresholds
//	GET    /api/v1/alerts                        alerts raised by the last update
//	GET    /api/v1/alerts/active                 firing and recently resolved notifications
//	GET    /api/v1/alerts/log?limit=N            resolved notifications, newest first
//	GET    /api/v1/maintenance                   maintenance prediction
//	GET    /api/v1/oee                           OEE and its factors
//	GET    /api/v1/report?hours=H                analytics report
//	GET    /api/v1/trends?hours=H                trend per metric
//	GET    /api/v1/readings?limit=N              persisted readings, newest first
//	POST   /api/v1/mode                          {"mode": "..."}
//	POST   /api/v1/defects                       {"count": N}
//	POST   /api/v1/scenarios/quick               quick projection, nothing recorded
//	POST   /api/v1/simulations/speed-increase    {"target_speed", "duration_minutes"}
//	POST   /api/v1/simulations/component-failure {"component", "severity"}
//	POST   /api/v1/simulations/what-if           {"name", "changes", "duration_hours"}
//	POST   /api/v1/simulations/maintenance       {"maintenance_type", "duration_hours"}
//	POST   /api/v1/simulations/stress-test       {"duration_minutes"}
//	GET    /api/v1/simulations?limit=N           simulation history, oldest first
//	DELETE /api/v1/simulations                   clear the history
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. Invalid scenario input is a 400.
package api
