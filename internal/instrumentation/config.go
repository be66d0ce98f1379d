package instrumentation

import (
	"fmt"
	"os"
	"time"

	"github.com/teemow/slotkeeper/internal/config"
)

// Config is the provider configuration. Build it with NewConfig.
type Config struct {
	ServiceName       string
	ServiceVersion    string
	ServiceInstanceID string
	Environment       string

	Enabled bool

	MetricsExporter string
	TracingExporter string

	// OTLPEndpoint is host:port without a scheme. TLS is used unless
	// OTLPInsecure is set.
	OTLPEndpoint string
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio of sampled root spans.
	TraceSamplingRate float64

	// DetailedLabels adds calendar IDs to metric labels. Keep it off in
	// production; every calendar becomes its own series.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludePII adds agent identifiers to audit entries.
	IncludePII bool
}

// NewConfig derives the provider configuration from the observability
// section. The instance ID falls back to the host name.
func NewConfig(o config.Observability, serviceVersion string) Config {
	instanceID := o.InstanceID
	if instanceID == "" {
		instanceID, _ = os.Hostname()
	}
	serviceName := o.ServiceName
	if serviceName == "" {
		serviceName = "slotkeeper"
	}
	if serviceVersion == "" {
		serviceVersion = "unknown"
	}

	return Config{
		ServiceName:       serviceName,
		ServiceVersion:    serviceVersion,
		ServiceInstanceID: instanceID,
		Environment:       o.Environment,
		Enabled:           o.Enabled,
		MetricsExporter:   o.MetricsExporter,
		TracingExporter:   o.TracingExporter,
		OTLPEndpoint:      o.OTLPEndpoint,
		OTLPInsecure:      o.OTLPInsecure,
		TraceSamplingRate: o.TraceSamplingRate,
		DetailedLabels:    o.DetailedLabels,
		AuditLogging: AuditLoggingConfig{
			Enabled:    o.Audit.Enabled,
			IncludePII: o.Audit.IncludePII,
		},
	}
}

// Validate checks exporter names, the sampling rate and that OTLP exporters
// have an endpoint.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter; set OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return nil
}

// Constants for metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the export interval of the push exporters.
	DefaultMetricInterval = 10 * time.Second
)
