// Package config loads and watches the conveyor twin configuration file.
//
// Top-level sections:
//   - conveyor: max_speed and maintenance_interval (both required; their
//     absence is a fatal startup error), cycle_interval
//   - thresholds: warning/critical limits per metric
//   - source: gateway endpoint, metric prefix, timeout, auth, or an opcua
//     endpoint with node mappings
//   - simulation: history_size, maintenance_base_cost
//   - series: retention and capacity of the in-memory state series
//   - bus: NATS url, subject prefix, buffer size, commands subject
//   - storage: SQL driver and the env var holding the DSN
//   - http: API port, auth and websocket broadcast interval
//   - alerts: notifier cooldown and webhook targets
//   - cache, influx, archive: optional Redis, InfluxDB and object storage
//     sinks, each disabled while its address is empty
//
// Load(path) reads the YAML file, applies defaults, then validates required
// fields and enums. Secrets are never stored in the file; *_env fields name
// the environment variable to read them from.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory so that
// atomic-save editors (write temp file, rename over) are picked up.
package config
