package config

// TracingConfig holds OTLP trace export configuration.
//
// Traces are exported to a local collector agent over OTLP HTTP.
// See internal/observability for the exporter setup.
type TracingConfig struct {
	// Enabled turns trace export on. Default: false.
	Enabled bool `mapstructure:"enabled"`
	// AgentHost is the OTLP HTTP endpoint (default: localhost:4318)
	AgentHost string `mapstructure:"agent_host"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment"`
	// ServiceName is the service name reported on spans (default: nutriqa)
	ServiceName string `mapstructure:"service_name"`
}
