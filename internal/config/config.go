package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCycleInterval       = 2 * time.Second
	DefaultSourceTimeout       = 5 * time.Second
	DefaultHistorySize         = 100
	DefaultMaintenanceBaseCost = 1000.0
	DefaultSeriesRetention     = 24 * time.Hour
	DefaultSeriesCapacity      = 50000
	DefaultSubjectPrefix       = "conveyor"
	DefaultBufferSize          = 1000
	DefaultHTTPPort            = 8080
	DefaultBroadcastInterval   = 5 * time.Second
	DefaultAlertCooldown       = 15 * time.Minute
	DefaultCacheKey            = "conveyortwin:view"
	DefaultCacheTTL            = 30 * time.Second
	DefaultInfluxMeasurement   = "conveyor"
	DefaultArchiveInterval     = time.Hour
	DefaultArchivePeriodHours  = 24.0
	DefaultArchivePrefix       = "reports/"
	DefaultOPCUAPublish        = 500 * time.Millisecond
	DefaultOPCUAStaleness      = 10 * time.Second
)

// Config is the full configuration tree parsed from YAML.
type Config struct {
	Conveyor   ConveyorConfig   `yaml:"conveyor"`
	Thresholds types.Thresholds `yaml:"thresholds"`
	Source     SourceConfig     `yaml:"source"`
	Simulation SimulationConfig `yaml:"simulation"`
	Series     SeriesConfig     `yaml:"series"`
	Bus        BusConfig        `yaml:"bus"`
	Storage    StorageConfig    `yaml:"storage"`
	HTTP       HTTPConfig       `yaml:"http"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Cache      CacheConfig      `yaml:"cache"`
	Influx     InfluxConfig     `yaml:"influx"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// ConveyorConfig holds the physical limits of the conveyor.
type ConveyorConfig struct {
	// MaxSpeed is the highest permitted belt speed in m/s. Required.
	MaxSpeed *float64 `yaml:"max_speed"`

	// MaintenanceInterval is the uptime in hours after which routine
	// maintenance is due. Required.
	MaintenanceInterval *float64 `yaml:"maintenance_interval"`

	// CycleInterval is the period of the control loop.
	CycleInterval time.Duration `yaml:"cycle_interval"`
}

// Limits returns the validated max speed and maintenance interval.
// It must only be called on a Config returned by Load.
func (c ConveyorConfig) Limits() (maxSpeed, maintenanceInterval float64) {
	return *c.MaxSpeed, *c.MaintenanceInterval
}

// Source kinds.
const (
	SourceGateway = "gateway"
	SourceOPCUA   = "opcua"
)

// SourceConfig describes where sensor readings come from.
type SourceConfig struct {
	// Kind is one of: gateway | opcua.
	Kind string `yaml:"kind"`

	// Endpoint is the URL of the gateway's text exposition. Required for
	// the gateway kind.
	Endpoint string `yaml:"endpoint"`

	// Prefix is prepended to every metric name when looking up families
	// (e.g. "plc1_" → "plc1_motor_temperature").
	Prefix string `yaml:"prefix"`

	Timeout time.Duration `yaml:"timeout"`
	Auth    AuthConfig    `yaml:"auth"`

	OPCUA OPCUAConfig `yaml:"opcua"`
}

// OPCUAConfig describes an OPC UA server publishing the conveyor tags.
type OPCUAConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	Username        string        `yaml:"username"`
	PasswordEnv     string        `yaml:"password_env"`
	PublishInterval time.Duration `yaml:"publish_interval"`

	// Staleness is how long a tag value stays current without a new
	// notification. Older values are reported as missing.
	Staleness time.Duration `yaml:"staleness"`
	Nodes     []OPCUANode   `yaml:"nodes"`
}

// Password returns the OPC UA password resolved from the environment.
func (o OPCUAConfig) Password() string { return lookupEnv(o.PasswordEnv) }

// OPCUANode maps one monitored node to a metric name.
type OPCUANode struct {
	NodeID string `yaml:"node_id"`
	Metric string `yaml:"metric"`
}

// AuthConfig specifies how the twin authenticates to the gateway.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// Header carries the API key when Mode == "apikey".
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return lookupEnv(a.TokenEnv) }

// SimulationConfig controls the scenario simulator.
type SimulationConfig struct {
	// HistorySize bounds the number of retained simulation results.
	HistorySize int `yaml:"history_size"`

	// MaintenanceBaseCost is the cost unit used by the maintenance ROI model.
	MaintenanceBaseCost float64 `yaml:"maintenance_base_cost"`
}

// SeriesConfig controls the in-memory state series used for trends.
type SeriesConfig struct {
	Retention time.Duration `yaml:"retention"`
	Capacity  int           `yaml:"capacity"`
}

// BusConfig configures the NATS message bus sink. An empty URL disables it.
type BusConfig struct {
	URL             string `yaml:"url"`
	Name            string `yaml:"name"`
	SubjectPrefix   string `yaml:"subject_prefix"`
	BufferSize      int    `yaml:"buffer_size"`
	CommandsSubject string `yaml:"commands_subject"`
}

// Enabled reports whether a bus URL was configured.
func (b BusConfig) Enabled() bool { return b.URL != "" }

// StorageConfig configures the SQL persistence sink. An empty DSNEnv
// disables it.
type StorageConfig struct {
	// Driver is the database/sql driver name: postgres.
	Driver string `yaml:"driver"`
	DSNEnv string `yaml:"dsn_env"`
}

// DSN returns the data source name resolved from the environment.
func (s StorageConfig) DSN() string { return lookupEnv(s.DSNEnv) }

// Enabled reports whether storage was configured.
func (s StorageConfig) Enabled() bool { return s.DSNEnv != "" }

// HTTPConfig configures the operator API and websocket hub.
type HTTPConfig struct {
	Port              int           `yaml:"port"`
	Auth              APIAuthConfig `yaml:"auth"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// APIAuthConfig controls authentication of incoming API requests.
type APIAuthConfig struct {
	// Mode is one of: apikey | jwt | none.
	Mode   string `yaml:"mode"`
	KeyEnv string `yaml:"key_env"`
	Header string `yaml:"header"`

	// SecretEnv names the variable holding the HMAC secret for jwt mode.
	SecretEnv string `yaml:"secret_env"`
}

// Key returns the expected API key resolved from the environment.
func (a APIAuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// Secret returns the JWT signing secret resolved from the environment.
func (a APIAuthConfig) Secret() string { return lookupEnv(a.SecretEnv) }

// EffectiveHeader returns the configured header name, or "x-api-key".
func (a APIAuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// AlertsConfig holds notifier settings and webhook targets.
type AlertsConfig struct {
	// Cooldown suppresses re-notification of the same alert type.
	Cooldown time.Duration   `yaml:"cooldown"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type   string `yaml:"type"`
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return lookupEnv(w.URLEnv) }

// CacheConfig configures the Redis cache of the latest twin view. An empty
// Addr disables it.
type CacheConfig struct {
	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	Key         string        `yaml:"key"`
	TTL         time.Duration `yaml:"ttl"`
}

// Password returns the Redis password resolved from the environment.
func (c CacheConfig) Password() string { return lookupEnv(c.PasswordEnv) }

// Enabled reports whether a Redis address was configured.
func (c CacheConfig) Enabled() bool { return c.Addr != "" }

// InfluxConfig configures the InfluxDB readings sink. An empty URL disables
// it.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	TokenEnv    string `yaml:"token_env"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// Token returns the InfluxDB API token resolved from the environment.
func (i InfluxConfig) Token() string { return lookupEnv(i.TokenEnv) }

// Enabled reports whether an InfluxDB URL was configured.
func (i InfluxConfig) Enabled() bool { return i.URL != "" }

// ArchiveConfig configures periodic upload of analytics reports to
// S3-compatible object storage. An empty Endpoint disables it.
type ArchiveConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Bucket       string        `yaml:"bucket"`
	Prefix       string        `yaml:"prefix"`
	AccessKeyEnv string        `yaml:"access_key_env"`
	SecretKeyEnv string        `yaml:"secret_key_env"`
	UseSSL       bool          `yaml:"use_ssl"`
	Interval     time.Duration `yaml:"interval"`
	PeriodHours  float64       `yaml:"period_hours"`
}

// AccessKey returns the access key resolved from the environment.
func (a ArchiveConfig) AccessKey() string { return lookupEnv(a.AccessKeyEnv) }

// SecretKey returns the secret key resolved from the environment.
func (a ArchiveConfig) SecretKey() string { return lookupEnv(a.SecretKeyEnv) }

// Enabled reports whether an archive endpoint was configured.
func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" }

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults; missing required fields
// are reported as an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Conveyor:   ConveyorConfig{CycleInterval: DefaultCycleInterval},
		Thresholds: types.DefaultThresholds(),
		Source: SourceConfig{
			Kind:    SourceGateway,
			Timeout: DefaultSourceTimeout,
			OPCUA: OPCUAConfig{
				SecurityMode:    "None",
				SecurityPolicy:  "None",
				PublishInterval: DefaultOPCUAPublish,
				Staleness:       DefaultOPCUAStaleness,
			},
		},
		Simulation: SimulationConfig{
			HistorySize:         DefaultHistorySize,
			MaintenanceBaseCost: DefaultMaintenanceBaseCost,
		},
		Series: SeriesConfig{
			Retention: DefaultSeriesRetention,
			Capacity:  DefaultSeriesCapacity,
		},
		Bus: BusConfig{
			Name:            "conveyortwin",
			SubjectPrefix:   DefaultSubjectPrefix,
			BufferSize:      DefaultBufferSize,
			CommandsSubject: DefaultSubjectPrefix + ".commands",
		},
		Storage: StorageConfig{Driver: "postgres"},
		HTTP: HTTPConfig{
			Port:              DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Alerts: AlertsConfig{Cooldown: DefaultAlertCooldown},
		Cache:  CacheConfig{Key: DefaultCacheKey, TTL: DefaultCacheTTL},
		Influx: InfluxConfig{Measurement: DefaultInfluxMeasurement},
		Archive: ArchiveConfig{
			Prefix:      DefaultArchivePrefix,
			Interval:    DefaultArchiveInterval,
			PeriodHours: DefaultArchivePeriodHours,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	c := cfg.Conveyor
	if c.MaxSpeed == nil {
		return fmt.Errorf("conveyor.max_speed is required")
	}
	if *c.MaxSpeed <= 0 {
		return fmt.Errorf("conveyor.max_speed must be positive")
	}
	if c.MaintenanceInterval == nil {
		return fmt.Errorf("conveyor.maintenance_interval is required")
	}
	if *c.MaintenanceInterval <= 0 {
		return fmt.Errorf("conveyor.maintenance_interval must be positive")
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("conveyor.cycle_interval must be positive")
	}

	limits := map[string]types.Limit{
		types.MetricMotorTemperature: cfg.Thresholds.MotorTemperature,
		types.MetricVibrationLevel:   cfg.Thresholds.VibrationLevel,
		types.MetricMotorCurrent:     cfg.Thresholds.MotorCurrent,
	}
	for name, l := range limits {
		if l.Warning <= 0 || l.Critical <= 0 {
			return fmt.Errorf("thresholds.%s: warning and critical must be positive", name)
		}
		if l.Warning > l.Critical {
			return fmt.Errorf("thresholds.%s: warning %.2f exceeds critical %.2f", name, l.Warning, l.Critical)
		}
	}

	if err := validateSource(cfg.Source); err != nil {
		return err
	}
	if cfg.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive")
	}
	switch cfg.Source.Auth.Mode {
	case "apikey", "bearer", "none", "":
	default:
		return fmt.Errorf("source.auth: unknown mode %q", cfg.Source.Auth.Mode)
	}
	if cfg.Source.Auth.Mode == "apikey" && cfg.Source.Auth.Header == "" {
		return fmt.Errorf("source.auth: header is required for apikey mode")
	}

	if cfg.Simulation.HistorySize <= 0 {
		return fmt.Errorf("simulation.history_size must be positive")
	}
	if cfg.Simulation.MaintenanceBaseCost <= 0 {
		return fmt.Errorf("simulation.maintenance_base_cost must be positive")
	}
	if cfg.Series.Retention <= 0 || cfg.Series.Capacity <= 0 {
		return fmt.Errorf("series: retention and capacity must be positive")
	}
	if cfg.Bus.Enabled() && cfg.Bus.BufferSize <= 0 {
		return fmt.Errorf("bus.buffer_size must be positive")
	}
	if cfg.Storage.Enabled() && cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("storage: unsupported driver %q", cfg.Storage.Driver)
	}

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range [1, 65535]", cfg.HTTP.Port)
	}
	switch cfg.HTTP.Auth.Mode {
	case "apikey", "jwt", "none", "":
	default:
		return fmt.Errorf("http.auth: unknown mode %q", cfg.HTTP.Auth.Mode)
	}
	if cfg.HTTP.Auth.Mode == "jwt" && cfg.HTTP.Auth.SecretEnv == "" {
		return fmt.Errorf("http.auth: secret_env is required for jwt mode")
	}
	if cfg.HTTP.BroadcastInterval <= 0 {
		return fmt.Errorf("http.broadcast_interval must be positive")
	}

	if cfg.Cache.Enabled() && (cfg.Cache.Key == "" || cfg.Cache.TTL <= 0) {
		return fmt.Errorf("cache: key and a positive ttl are required")
	}
	if cfg.Influx.Enabled() && (cfg.Influx.Org == "" || cfg.Influx.Bucket == "") {
		return fmt.Errorf("influx: org and bucket are required")
	}
	if cfg.Archive.Enabled() {
		if cfg.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required")
		}
		if cfg.Archive.Interval <= 0 || cfg.Archive.PeriodHours <= 0 {
			return fmt.Errorf("archive: interval and period_hours must be positive")
		}
	}

	for i, wh := range cfg.Alerts.Webhooks {
		switch wh.Type {
		case "teams", "slack", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return nil
}

func validateSource(src SourceConfig) error {
	switch src.Kind {
	case SourceGateway:
		if src.Endpoint == "" {
			return fmt.Errorf("source.endpoint is required")
		}
	case SourceOPCUA:
		o := src.OPCUA
		if o.Endpoint == "" {
			return fmt.Errorf("source.opcua.endpoint is required")
		}
		if len(o.Nodes) == 0 {
			return fmt.Errorf("source.opcua: at least one node is required")
		}
		if o.PublishInterval <= 0 || o.Staleness <= 0 {
			return fmt.Errorf("source.opcua: publish_interval and staleness must be positive")
		}
		for i, n := range o.Nodes {
			if n.NodeID == "" {
				return fmt.Errorf("source.opcua.nodes[%d]: node_id is required", i)
			}
			if !knownMetric(n.Metric) {
				return fmt.Errorf("source.opcua.nodes[%d]: unknown metric %q", i, n.Metric)
			}
		}
	default:
		return fmt.Errorf("source: unknown kind %q", src.Kind)
	}
	return nil
}

func knownMetric(m string) bool {
	switch m {
	case types.MetricConveyorSpeed, types.MetricMotorTemperature, types.MetricVibrationLevel,
		types.MetricMotorCurrent, types.MetricEncoderPosition, types.MetricEmergencyStop:
		return true
	}
	return false
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
