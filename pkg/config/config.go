package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `koanf:"server" yaml:"server"`
	Stripe        StripeConfig        `koanf:"stripe" yaml:"stripe"`
	Storage       storage.Config      `koanf:"storage" yaml:"storage"`
	Observability ObservabilityConfig `koanf:"observability" yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `koanf:"host" yaml:"host"`
	Port            string        `koanf:"port" yaml:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins" yaml:"cors_origins"`

	// StoreProbeSchedule is a cron spec for the background record store
	// probe behind intake_store_up. Empty disables the probe.
	StoreProbeSchedule string `koanf:"store_probe_schedule" yaml:"store_probe_schedule"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `koanf:"health_port" yaml:"health_port"`
}

// StripeConfig holds payment processor settings
type StripeConfig struct {
	SecretKey string        `koanf:"secret_key" yaml:"secret_key"`
	PriceID   string        `koanf:"price_id" yaml:"price_id"`
	APIURL    string        `koanf:"api_url" yaml:"api_url"`
	Timeout   time.Duration `koanf:"timeout" yaml:"timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `koanf:"log_level" yaml:"log_level"`
	MetricsEnabled bool   `koanf:"metrics_enabled" yaml:"metrics_enabled"`

	OTelEnabled        bool   `koanf:"otel_enabled" yaml:"otel_enabled"`
	OTelEndpoint       string `koanf:"otel_endpoint" yaml:"otel_endpoint"`
	OTelServiceName    string `koanf:"otel_service_name" yaml:"otel_service_name"`
	OTelServiceVersion string `koanf:"otel_service_version" yaml:"otel_service_version"`
	OTelInsecure       bool   `koanf:"otel_insecure" yaml:"otel_insecure"` // Use insecure gRPC connection
}

// Level parses LogLevel, falling back to info
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// envKeys maps environment variables to config keys. Variables not listed
// here are ignored. STRIPE_SECRET_KEY, STRIPE_PRICE_ID, DYNAMO_TABLE and
// AWS_REGION keep the names the Lambda deployment already uses.
var envKeys = map[string]string{
	"INTAKE_HOST":             "server.host",
	"INTAKE_PORT":             "server.port",
	"INTAKE_HEALTH_PORT":      "server.health_port",
	"INTAKE_READ_TIMEOUT":     "server.read_timeout",
	"INTAKE_WRITE_TIMEOUT":    "server.write_timeout",
	"INTAKE_IDLE_TIMEOUT":     "server.idle_timeout",
	"INTAKE_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
	"INTAKE_CORS_ORIGINS":     "server.cors_origins",
	"INTAKE_STORE_PROBE":      "server.store_probe_schedule",

	"STRIPE_SECRET_KEY":     "stripe.secret_key",
	"STRIPE_PRICE_ID":       "stripe.price_id",
	"INTAKE_STRIPE_API_URL": "stripe.api_url",
	"INTAKE_STRIPE_TIMEOUT": "stripe.timeout",

	"INTAKE_STORAGE_TYPE":        "storage.type",
	"DYNAMO_TABLE":               "storage.dynamodb.table",
	"AWS_REGION":                 "storage.dynamodb.region",
	"INTAKE_DYNAMODB_ENDPOINT":   "storage.dynamodb.endpoint",
	"INTAKE_DYNAMODB_ACCESS_KEY": "storage.dynamodb.access_key",
	"INTAKE_DYNAMODB_SECRET_KEY": "storage.dynamodb.secret_key",
	"INTAKE_POSTGRES_URL":        "storage.postgres.url",
	"INTAKE_POSTGRES_MAX_CONNS":  "storage.postgres.max_conns",
	"INTAKE_POSTGRES_MIN_CONNS":  "storage.postgres.min_conns",
	"INTAKE_POSTGRES_TIMEOUT":    "storage.postgres.timeout",
	"INTAKE_SQLITE_PATH":         "storage.sqlite.path",
	"INTAKE_REDIS_URL":           "storage.redis.url",
	"INTAKE_REDIS_PASSWORD":      "storage.redis.password",
	"INTAKE_REDIS_DB":            "storage.redis.db",
	"INTAKE_REDIS_KEY_PREFIX":    "storage.redis.key_prefix",
	"INTAKE_S3_BUCKET":           "storage.s3.bucket",
	"INTAKE_S3_PREFIX":           "storage.s3.prefix",
	"INTAKE_S3_ENDPOINT":         "storage.s3.endpoint",
	"INTAKE_S3_REGION":           "storage.s3.region",
	"INTAKE_S3_ACCESS_KEY":       "storage.s3.access_key",
	"INTAKE_S3_SECRET_KEY":       "storage.s3.secret_key",
	"INTAKE_S3_USE_PATH_STYLE":   "storage.s3.use_path_style",

	"INTAKE_LOG_LEVEL":            "observability.log_level",
	"INTAKE_METRICS_ENABLED":      "observability.metrics_enabled",
	"INTAKE_OTEL_ENABLED":         "observability.otel_enabled",
	"INTAKE_OTEL_ENDPOINT":        "observability.otel_endpoint",
	"INTAKE_OTEL_SERVICE_NAME":    "observability.otel_service_name",
	"INTAKE_OTEL_SERVICE_VERSION": "observability.otel_service_version",
	"INTAKE_OTEL_INSECURE":        "observability.otel_insecure",
}

func defaults() map[string]interface{} {
	st := storage.DefaultConfig()
	return map[string]interface{}{
		"server.host":                 "0.0.0.0",
		"server.port":                 "8080",
		"server.health_port":          "9090",
		"server.read_timeout":         "15s",
		"server.write_timeout":        "15s",
		"server.idle_timeout":         "60s",
		"server.shutdown_timeout":     "30s",
		"server.cors_origins":         []string{"*"},
		"server.store_probe_schedule": "@every 30s",

		"stripe.timeout": "30s",

		"storage.type":               st.Type,
		"storage.dynamodb.region":    st.DynamoDB.Region,
		"storage.postgres.max_conns": st.Postgres.MaxConns,
		"storage.postgres.min_conns": st.Postgres.MinConns,
		"storage.postgres.timeout":   st.Postgres.Timeout.String(),
		"storage.sqlite.path":        st.SQLite.Path,
		"storage.redis.key_prefix":   st.Redis.KeyPrefix,
		"storage.redis.pool_size":    st.Redis.PoolSize,
		"storage.s3.prefix":          st.S3.Prefix,
		"storage.s3.region":          st.S3.Region,

		"observability.log_level":            "info",
		"observability.metrics_enabled":      true,
		"observability.otel_enabled":         false,
		"observability.otel_endpoint":        "localhost:4317",
		"observability.otel_service_name":    "subscription-intake",
		"observability.otel_service_version": "1.0.0",
		"observability.otel_insecure":        true,
	}
}

// Load resolves configuration from defaults, then the optional file at
// path (TOML or YAML by extension), then the environment, and validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	// Empty variables count as unset, so defaults and file values survive them
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return envKeys[key], value
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.Server.CORSOrigins = splitOrigins(cfg.Server.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

// splitOrigins trims entries and drops empty ones left by "a, b," style values
func splitOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe secret key is required (STRIPE_SECRET_KEY)")
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Warnings lists settings that are valid at startup but will make
// requests fail later
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Stripe.PriceID == "" {
		warnings = append(warnings, "stripe price ID is not set (STRIPE_PRICE_ID); every intake will fail after creating the customer")
	}
	return warnings
}

const redactedValue = "[REDACTED]"

// Redacted returns a copy with secrets and credential-bearing URLs masked
func (c *Config) Redacted() Config {
	out := *c
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	mask := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}
	mask(&out.Stripe.SecretKey)
	mask(&out.Storage.DynamoDB.AccessKey)
	mask(&out.Storage.DynamoDB.SecretKey)
	mask(&out.Storage.S3.AccessKey)
	mask(&out.Storage.S3.SecretKey)
	mask(&out.Storage.Postgres.URL)
	mask(&out.Storage.Redis.URL)
	mask(&out.Storage.Redis.Password)
	return out
}
