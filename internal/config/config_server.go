package config

// ServerConfig controls the orchestrator's own listen addresses: the
// optional HTTP health/status endpoint and the Prometheus metrics exporter.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}
