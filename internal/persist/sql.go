package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/conveyortwin/conveyortwin/pkg/types"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sensor_data (
	id                BIGSERIAL PRIMARY KEY,
	ts                TIMESTAMPTZ NOT NULL,
	conveyor_speed    DOUBLE PRECISION,
	motor_temperature DOUBLE PRECISION,
	vibration_level   DOUBLE PRECISION,
	motor_current     DOUBLE PRECISION,
	efficiency        DOUBLE PRECISION NOT NULL,
	operating_mode    TEXT NOT NULL,
	missing           TEXT[] NOT NULL DEFAULT '{}'
)`,
	`CREATE INDEX IF NOT EXISTS sensor_data_ts_idx ON sensor_data (ts DESC)`,
	`CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	alert_type TEXT NOT NULL,
	severity   TEXT NOT NULL,
	message    TEXT NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	resolved   BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE TABLE IF NOT EXISTS simulations (
	id              TEXT PRIMARY KEY,
	ts              TIMESTAMPTZ NOT NULL,
	scenario_name   TEXT NOT NULL,
	success         BOOLEAN NOT NULL,
	parameters      JSONB NOT NULL,
	warnings        TEXT[] NOT NULL,
	recommendations TEXT[] NOT NULL,
	duration_ms     DOUBLE PRECISION NOT NULL
)`,
}

// Reading is one persisted state sample. Nil metric fields were missing.
type Reading struct {
	Timestamp        time.Time  `json:"timestamp"`
	Speed            *float64   `json:"conveyor_speed"`
	MotorTemperature *float64   `json:"motor_temperature"`
	VibrationLevel   *float64   `json:"vibration_level"`
	MotorCurrent     *float64   `json:"motor_current"`
	Efficiency       float64    `json:"efficiency"`
	Mode             types.Mode `json:"operating_mode"`
	Missing          []string   `json:"missing"`
}

// SQLSink writes to a PostgreSQL database.
type SQLSink struct {
	db *sql.DB
}

// Open connects to the database named by dsn.
func Open(driver, dsn string) (*SQLSink, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("persist: open: %w", err)
	}
	return NewSQLSink(db), nil
}

// NewSQLSink wraps an existing handle.
func NewSQLSink(db *sql.DB) *SQLSink {
	return &SQLSink{db: db}
}

func (s *SQLSink) Name() string { return "postgres" }

// Close releases the database handle.
func (s *SQLSink) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *SQLSink) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("persist: ping: %w", err)
	}
	return nil
}

// Migrate creates the tables when they do not exist.
func (s *SQLSink) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("persist: migrate: %w", err)
		}
	}
	return nil
}

// SaveReading stores one state sample. Metrics listed in st.Missing are
// written as NULL.
func (s *SQLSink) SaveReading(ctx context.Context, st types.OperationalState) error {
	missing := make(map[string]bool, len(st.Missing))
	for _, m := range st.Missing {
		missing[m] = true
	}
	value := func(metric string, v float64) sql.NullFloat64 {
		return sql.NullFloat64{Float64: v, Valid: !missing[metric]}
	}
	names := st.Missing
	if names == nil {
		names = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_data (ts, conveyor_speed, motor_temperature, vibration_level, motor_current, efficiency, operating_mode, missing) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		st.UpdatedAt,
		value(types.MetricConveyorSpeed, st.Speed),
		value(types.MetricMotorTemperature, st.MotorTemperature),
		value(types.MetricVibrationLevel, st.VibrationLevel),
		value(types.MetricMotorCurrent, st.MotorCurrent),
		st.Efficiency,
		string(st.Mode),
		pq.Array(names),
	)
	if err != nil {
		return fmt.Errorf("persist: save reading: %w", err)
	}
	return nil
}

// SaveAlerts stores an alert set in one statement. Alerts already stored
// are skipped.
func (s *SQLSink) SaveAlerts(ctx context.Context, alerts []types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO alerts (id, ts, alert_type, severity, message, value, resolved) VALUES ")
	args := make([]interface{}, 0, len(alerts)*7)
	for i, a := range alerts {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		args = append(args, a.ID, a.Timestamp, a.Type.String(), a.Severity.String(), a.Message, a.Value, a.Resolved)
	}
	b.WriteString(" ON CONFLICT (id) DO NOTHING")

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("persist: save alerts: %w", err)
	}
	return nil
}

// SaveSimulation stores one simulation result.
func (s *SQLSink) SaveSimulation(ctx context.Context, res types.SimulationResult) error {
	params, err := json.Marshal(res.Parameters)
	if err != nil {
		return fmt.Errorf("persist: encode parameters: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO simulations (id, ts, scenario_name, success, parameters, warnings, recommendations, duration_ms) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (id) DO NOTHING`,
		res.ID,
		res.Timestamp,
		res.ScenarioName,
		res.Success,
		params,
		pq.Array(nonNil(res.Warnings)),
		pq.Array(nonNil(res.Recommendations)),
		float64(res.Duration)/float64(time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("persist: save simulation: %w", err)
	}
	return nil
}

// RecentReadings returns up to limit readings, newest first.
func (s *SQLSink) RecentReadings(ctx context.Context, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, conveyor_speed, motor_temperature, vibration_level, motor_current, efficiency, operating_mode, missing FROM sensor_data ORDER BY ts DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("persist: query readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			r                  Reading
			speed, temp        sql.NullFloat64
			vibration, current sql.NullFloat64
			mode               string
		)
		if err := rows.Scan(&r.Timestamp, &speed, &temp, &vibration, &current, &r.Efficiency, &mode, pq.Array(&r.Missing)); err != nil {
			return nil, fmt.Errorf("persist: scan reading: %w", err)
		}
		r.Speed = ptr(speed)
		r.MotorTemperature = ptr(temp)
		r.VibrationLevel = ptr(vibration)
		r.MotorCurrent = ptr(current)
		r.Mode = types.Mode(mode)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persist: read rows: %w", err)
	}
	return out, nil
}

func ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
