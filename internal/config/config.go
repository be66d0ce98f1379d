package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config is the process configuration. It is built once at startup and
// passed to the components that need it.
type Config struct {
	Scheduling Scheduling `yaml:"scheduling"`
	Database   Database   `yaml:"database"`
	Lock       Lock       `yaml:"lock"`
	Digest     Digest     `yaml:"digest"`
	Agent      Agent      `yaml:"agent"`
	Log        Log        `yaml:"log"`
	Resolution Resolution `yaml:"resolution"`

	Observability Observability `yaml:"observability"`
}

// Scheduling holds the business rules of the scheduling engine.
type Scheduling struct {
	// BusinessStart and BusinessEnd bound the local working day ("09:00", "17:00").
	BusinessStart ClockTime `yaml:"business_start"`
	BusinessEnd   ClockTime `yaml:"business_end"`

	// LunchStart and LunchEnd bound the lunch hour avoided by reschedules.
	LunchStart ClockTime `yaml:"lunch_start"`
	LunchEnd   ClockTime `yaml:"lunch_end"`

	// DefaultTimezone is used for calendars without a time zone.
	DefaultTimezone string `yaml:"default_timezone"`

	// SlotAlignment is the grid candidate slots are aligned to.
	SlotAlignment time.Duration `yaml:"slot_alignment"`

	// DefaultPriority applies when a caller omits the priority.
	DefaultPriority int `yaml:"default_priority"`

	// MinBusyHours is the threshold under which a day counts as underutilized.
	MinBusyHours float64 `yaml:"min_busy_hours"`

	// MaxSearchIterations caps the candidates examined by a single search.
	MaxSearchIterations int `yaml:"max_search_iterations"`

	// MaxRangeDays caps the days covered by a range analysis.
	MaxRangeDays int `yaml:"max_range_days"`
}

// Location loads DefaultTimezone.
func (s Scheduling) Location() *time.Location {
	loc, err := time.LoadLocation(s.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Database selects and configures the appointment store.
type Database struct {
	// Driver is "sqlite", "postgres" or "memory".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Lock configures calendar locking.
type Lock struct {
	// Backend is "local" (single process) or "redis" (shared between replicas).
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
	TTL           time.Duration `yaml:"ttl"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Digest configures the periodic utilization digest.
type Digest struct {
	// Schedule is a cron expression. Empty disables the digest.
	Schedule    string `yaml:"schedule"`
	HorizonDays int    `yaml:"horizon_days"`
}

// Agent identifies the calendar owner used when a tool call names no calendar.
type Agent struct {
	ID           string `yaml:"id"`
	CalendarName string `yaml:"calendar_name"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Resolution holds conflict resolution settings.
type Resolution struct {
	// DefaultStrategy is used when resolve_conflicts is called without one.
	// It has the same shape as the JSON strategy document.
	DefaultStrategy map[string]any `yaml:"default_strategy"`
}

// Observability configures OpenTelemetry metrics and tracing and the tool
// audit log.
type Observability struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`

	// InstanceID defaults to the host name.
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"`

	// MetricsExporter is "prometheus", "otlp" or "stdout".
	MetricsExporter string `yaml:"metrics_exporter"`

	// TracingExporter is "otlp", "stdout" or "none".
	TracingExporter   string  `yaml:"tracing_exporter"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint"`
	OTLPInsecure      bool    `yaml:"otlp_insecure"`
	TraceSamplingRate float64 `yaml:"trace_sampling_rate"`

	// DetailedLabels adds calendar IDs to metric labels.
	DetailedLabels bool `yaml:"detailed_labels"`

	Audit Audit `yaml:"audit"`
}

// Audit configures the tool invocation audit log.
type Audit struct {
	Enabled bool `yaml:"enabled"`

	// IncludePII adds agent identifiers to audit entries.
	IncludePII bool `yaml:"include_pii"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Scheduling: Scheduling{
			BusinessStart:       ClockTime{Hour: 9},
			BusinessEnd:         ClockTime{Hour: 17},
			LunchStart:          ClockTime{Hour: 12},
			LunchEnd:            ClockTime{Hour: 13},
			DefaultTimezone:     "UTC",
			SlotAlignment:       30 * time.Minute,
			DefaultPriority:     3,
			MinBusyHours:        4.0,
			MaxSearchIterations: 20000,
			MaxRangeDays:        92,
		},
		Database: Database{
			Driver:          DriverSQLite,
			Path:            "slotkeeper.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Lock: Lock{
			Backend:       LockLocal,
			RedisAddr:     "localhost:6379",
			KeyPrefix:     "slotkeeper:",
			TTL:           10 * time.Second,
			RetryInterval: 50 * time.Millisecond,
		},
		Digest: Digest{
			HorizonDays: 5,
		},
		Agent: Agent{
			ID:           "default",
			CalendarName: "Default",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Observability: Observability{
			Enabled:           true,
			ServiceName:       "slotkeeper",
			MetricsExporter:   "prometheus",
			TracingExporter:   "none",
			TraceSamplingRate: 0.1,
			Audit: Audit{
				Enabled: true,
			},
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, dotenv files and environment variables, in that order of
// increasing precedence.
func Load(path string) (Config, error) {
	loadDotEnv()

	cfg := Default()

	if path == "" {
		path = os.Getenv("SLOTKEEPER_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads .env and .env.secrets when present. Variables already set
// in the environment win.
func loadDotEnv() {
	for _, f := range []string{".env", ".env.secrets"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	s := &c.Scheduling
	if v := os.Getenv("BUSINESS_START"); v != "" {
		ct, err := ParseClockTime(v)
		errs = append(errs, err)
		s.BusinessStart = ct
	}
	if v := os.Getenv("BUSINESS_END"); v != "" {
		ct, err := ParseClockTime(v)
		errs = append(errs, err)
		s.BusinessEnd = ct
	}
	s.DefaultTimezone = envString("DEFAULT_TIMEZONE", s.DefaultTimezone)
	s.SlotAlignment = envDuration("SLOT_ALIGNMENT", s.SlotAlignment)
	s.DefaultPriority = envInt("DEFAULT_PRIORITY", s.DefaultPriority)
	s.MinBusyHours = envFloat("MIN_BUSY_HOURS", s.MinBusyHours)
	s.MaxSearchIterations = envInt("MAX_SEARCH_ITERATIONS", s.MaxSearchIterations)
	s.MaxRangeDays = envInt("MAX_RANGE_DAYS", s.MaxRangeDays)

	d := &c.Database
	if url := os.Getenv("DATABASE_URL"); url != "" {
		d.Driver = DriverPostgres
		d.DSN = url
	}
	d.Driver = envString("DATABASE_DRIVER", d.Driver)
	d.Path = envString("DATABASE_PATH", d.Path)

	l := &c.Lock
	l.Backend = envString("LOCK_BACKEND", l.Backend)
	l.RedisAddr = envString("REDIS_ADDR", l.RedisAddr)
	l.RedisPassword = envString("REDIS_PASSWORD", l.RedisPassword)
	l.RedisDB = envInt("REDIS_DB", l.RedisDB)
	l.TTL = envDuration("LOCK_TTL", l.TTL)

	c.Digest.Schedule = envString("DIGEST_SCHEDULE", c.Digest.Schedule)
	c.Digest.HorizonDays = envInt("DIGEST_HORIZON_DAYS", c.Digest.HorizonDays)

	c.Agent.ID = envString("AGENT_ID", c.Agent.ID)
	c.Agent.CalendarName = envString("AGENT_CALENDAR_NAME", c.Agent.CalendarName)

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)

	o := &c.Observability
	o.Enabled = envBool("INSTRUMENTATION_ENABLED", o.Enabled)
	o.ServiceName = envString("OTEL_SERVICE_NAME", o.ServiceName)
	o.InstanceID = envString("OTEL_SERVICE_INSTANCE_ID", o.InstanceID)
	o.Environment = envString("DEPLOYMENT_ENVIRONMENT", o.Environment)
	o.MetricsExporter = envString("METRICS_EXPORTER", o.MetricsExporter)
	o.TracingExporter = envString("TRACING_EXPORTER", o.TracingExporter)
	o.OTLPEndpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", o.OTLPEndpoint)
	o.OTLPInsecure = envBool("OTEL_EXPORTER_OTLP_INSECURE", o.OTLPInsecure)
	o.TraceSamplingRate = envFloat("OTEL_TRACES_SAMPLER_ARG", o.TraceSamplingRate)
	o.DetailedLabels = envBool("METRICS_DETAILED_LABELS", o.DetailedLabels)
	o.Audit.Enabled = envBool("AUDIT_LOGGING_ENABLED", o.Audit.Enabled)
	o.Audit.IncludePII = envBool("AUDIT_LOGGING_INCLUDE_PII", o.Audit.IncludePII)

	return errors.Join(errs...)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	s := c.Scheduling
	if !s.BusinessStart.Before(s.BusinessEnd) {
		return fmt.Errorf("business_start (%s) must be before business_end (%s)", s.BusinessStart, s.BusinessEnd)
	}
	if !s.LunchStart.Before(s.LunchEnd) {
		return fmt.Errorf("lunch_start (%s) must be before lunch_end (%s)", s.LunchStart, s.LunchEnd)
	}
	if _, err := time.LoadLocation(s.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid default_timezone %q: %w", s.DefaultTimezone, err)
	}
	if s.SlotAlignment < time.Minute || s.SlotAlignment > 24*time.Hour {
		return fmt.Errorf("slot_alignment must be between 1m and 24h, got %s", s.SlotAlignment)
	}
	if s.DefaultPriority < 1 || s.DefaultPriority > 5 {
		return fmt.Errorf("default_priority must be between 1 and 5, got %d", s.DefaultPriority)
	}
	if s.MinBusyHours < 0 || s.MinBusyHours > 24 {
		return fmt.Errorf("min_busy_hours must be between 0 and 24, got %g", s.MinBusyHours)
	}
	if s.MaxSearchIterations <= 0 {
		return fmt.Errorf("max_search_iterations must be positive")
	}
	if s.MaxRangeDays <= 0 {
		return fmt.Errorf("max_range_days must be positive")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn (or DATABASE_URL) is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid database driver %q, must be one of: sqlite, postgres, memory", c.Database.Driver)
	}

	switch c.Lock.Backend {
	case LockLocal:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis lock backend")
		}
		if c.Lock.TTL <= 0 {
			return fmt.Errorf("lock ttl must be positive")
		}
	default:
		return fmt.Errorf("invalid lock backend %q, must be one of: local, redis", c.Lock.Backend)
	}

	if c.Digest.HorizonDays <= 0 {
		return fmt.Errorf("digest horizon_days must be positive")
	}
	if strings.TrimSpace(c.Agent.ID) == "" {
		return fmt.Errorf("agent id is required")
	}
	return nil
}
