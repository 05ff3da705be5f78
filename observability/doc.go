// Package observability wires OpenTelemetry tracing and metrics for restkit
// clients.
//
// Setup installs OTLP/HTTP exporting providers for the whole process:
//
//	cfg := observability.Config{Enabled: true, Endpoint: "otel-collector:4318", Insecure: true}
//	cfg.ApplyDefaults("billing", version.Get().Version)
//	shutdown, err := observability.Setup(ctx, cfg)
//	defer shutdown(context.Background())
//
// Clients record into the global providers unless given explicit ones, so
// calling Setup once at startup is enough. NewClientMetrics and ObservePool
// create the instruments a client records into.
package observability
