// Package observability provides OpenTelemetry integration for distributed
// tracing.
//
// Genkit instruments every model and embedder call with OpenTelemetry spans
// on its own TracerProvider. This package attaches an OTLP HTTP exporter to
// that provider so those spans reach a local collector or agent.
//
// Environment variables (optional):
//   - OTEL_AGENT_HOST: Override collector endpoint (default: localhost:4318)
//
// Config file (~/.nutriqa/config.yaml):
//
//	tracing:
//	  enabled: true
//	  agent_host: "localhost:4318"
//	  environment: "dev"
//	  service_name: "nutriqa"
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for the OTLP trace exporter.
type Config struct {
	// AgentHost is the collector OTLP HTTP endpoint (default: localhost:4318)
	AgentHost string
	// Environment is the deployment environment (dev, staging, prod)
	Environment string
	// ServiceName is the service name shown in the tracing backend
	ServiceName string
}

// DefaultAgentHost is the default OTLP HTTP collector endpoint.
const DefaultAgentHost = "localhost:4318"

// Setup registers an OTLP HTTP exporter with Genkit's TracerProvider.
//
// Returns a shutdown function that flushes pending spans. An unreachable
// collector disables tracing instead of failing startup.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	agentHost := cfg.AgentHost
	if agentHost == "" {
		agentHost = DefaultAgentHost
	}

	// Genkit's TracerProvider reads the service identity from the
	// standard OTEL environment variables
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		slog.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("tracing enabled",
		"agent", agentHost,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
