package telemetry

// Config controls trace export for the GC maintenance process.
type Config struct {
	Enabled bool

	// ServiceName and ServiceVersion identify this collector instance in
	// the trace backend.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC target, host:port.
	Endpoint string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// SampleRate is the fraction of GC-run root spans to sample, 0.0 to
	// 1.0. Maintenance passes are infrequent, so 1.0 is a fine default.
	SampleRate float64
}
