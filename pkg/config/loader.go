package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/packet-anomaly")
	}

	// Environment variable settings
	v.SetEnvPrefix("PACKETANOMALY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "packet-anomaly")
	v.SetDefault("app.mode", "cli")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	// Parser defaults
	v.SetDefault("parser.skip_invalid_files", false)

	// Detector defaults
	v.SetDefault("detector.percentile", 95.0)
	v.SetDefault("detector.models", []string{"plain", "sparse", "variational", "stacked"})
	v.SetDefault("detector.parallel_training", false)
	v.SetDefault("detector.output_path", "log_anomalies.csv")
	v.SetDefault("detector.report_path", "")
	v.SetDefault("detector.run_timeout", "30m")
	v.SetDefault("detector.max_concurrent_runs", 2)

	// Model defaults
	v.SetDefault("model.bottleneck_units", 32)
	v.SetDefault("model.sparsity_penalty", 1e-4)
	v.SetDefault("model.latent_units", 4)
	v.SetDefault("model.kl_weight", 1e-3)
	v.SetDefault("model.epochs", 10)
	v.SetDefault("model.batch_size", 8)
	v.SetDefault("model.validation_split", 0.2)
	v.SetDefault("model.learning_rate", 0.001)
	v.SetDefault("model.seed", 42)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "packet_anomaly")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migration_timeout", "60s")
	v.SetDefault("database.breaker_max_failures", 5)
	v.SetDefault("database.breaker_reset_timeout", "30s")

	// API defaults
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.jwt_issuer", "packet-anomaly")
	v.SetDefault("api.cookie_name", "auth_token")
	v.SetDefault("api.cookie_max_age", 86400)
	v.SetDefault("api.cookie_path", "/")
	v.SetDefault("api.cookie_http_only", true)
	v.SetDefault("api.default_limit", 100)
	v.SetDefault("api.max_limit", 1000)
	v.SetDefault("api.data_dir", ".")
	v.SetDefault("api.cors.allowed_origins", []string{"*"})
	v.SetDefault("api.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("api.cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"})

	// WebSocket defaults
	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 256)

	// Prometheus defaults
	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)

	// Events defaults
	v.SetDefault("events.buffer_size", 100)
}
