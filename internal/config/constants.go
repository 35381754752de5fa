package config

// Application identity.
const (
	AppName    = "fedflow"
	AppVersion = "1.2.0"

	// EnvPrefix namespaces every environment override, e.g.
	// FEDFLOW_SERVER_PORT.
	EnvPrefix = "FEDFLOW"

	// DefaultConfigFile is probed in the working directory and under
	// configs/ when no --config flag is given.
	DefaultConfigFile = "fedflow.yaml"
)

// HTTP surface.
const (
	APIBasePath       = "/api/v1"
	HealthEndpoint    = "/healthz"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
)
