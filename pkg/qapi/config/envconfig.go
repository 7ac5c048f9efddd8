package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/quatton/qpaper/pkg/qlog"
)

// Result store backends.
const (
	StoreNone = "none"
	StoreFile = "file"
	StoreS3   = "s3"
)

type EnvConfig struct {
	Port           string `envconfig:"PORT" default:"5000"`
	MetricsPort    string `envconfig:"METRICS_PORT" default:"9090"`
	ProcessorsFile string `envconfig:"PROCESSORS_FILE"`
	Namespace      string `envconfig:"K8S_NAMESPACE"`
	AuthSecret     string `envconfig:"AUTH_SECRET"`
	PrometheusURL  string `envconfig:"PROMETHEUS_URL"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	Environment    string `envconfig:"ENVIRONMENT" default:"development"`

	ResultStore     string `envconfig:"RESULT_STORE" default:"none"`
	ResultPodRoot   string `envconfig:"RESULT_POD_ROOT"`
	ResultLocalRoot string `envconfig:"RESULT_LOCAL_ROOT"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"true"`
	S3Prefix    string `envconfig:"S3_PREFIX"`
}

func ValidateEnv() (*EnvConfig, error) {
	if IsDev() {
		if err := godotenv.Load(); err != nil {
			log.Println("ℹ No .env file found")
		} else {
			log.Println("✓ Loaded .env file")
		}
	}

	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate collects every problem instead of stopping at the first one.
func (c *EnvConfig) Validate() error {
	var errors []string

	if c.AuthSecret != "" && len(c.AuthSecret) < 32 {
		errors = append(errors, "  ❌ AUTH_SECRET must be at least 32 characters")
	}

	if _, err := qlog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("  ❌ LOG_LEVEL: %v", err))
	}

	if c.PrometheusURL != "" {
		if _, err := url.ParseRequestURI(c.PrometheusURL); err != nil {
			errors = append(errors, "  ❌ PROMETHEUS_URL must be a valid URL")
		}
	}

	switch c.ResultStore {
	case StoreNone:
	case StoreFile:
		if c.ResultLocalRoot == "" {
			errors = append(errors, "  ❌ RESULT_LOCAL_ROOT is required when RESULT_STORE=file")
		}
	case StoreS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			errors = append(errors, "  ❌ S3_ENDPOINT and S3_BUCKET are required when RESULT_STORE=s3")
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			errors = append(errors, "  ❌ Both S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
	default:
		errors = append(errors, fmt.Sprintf("  ❌ RESULT_STORE must be one of none, file, s3 (got %q)", c.ResultStore))
	}

	if len(errors) > 0 {
		return fmt.Errorf("environment validation failed:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *EnvConfig) Print(fmtr func(string, ...interface{})) {
	fmtr("📋 Configuration:\n")
	fmtr("  Environment: %s\n", c.Environment)
	fmtr("  Port: %s (metrics %s)\n", c.Port, c.MetricsPort)
	fmtr("  Processors file: %s\n", orDefault(c.ProcessorsFile, "<search>"))
	fmtr("  Namespace: %s\n", orDefault(c.Namespace, "<detect>"))
	fmtr("  Log level: %s\n", c.LogLevel)

	if c.AuthSecret != "" {
		fmtr("  Auth: ✓ Enabled (secret %s)\n", MaskSecret(c.AuthSecret))
	} else {
		fmtr("  Auth: ✗ Disabled\n")
	}

	if c.PrometheusURL != "" {
		fmtr("  Resource usage: ✓ %s\n", c.PrometheusURL)
	} else {
		fmtr("  Resource usage: ✗ Disabled\n")
	}

	switch c.ResultStore {
	case StoreFile:
		fmtr("  Result store: file (%s)\n", c.ResultLocalRoot)
	case StoreS3:
		fmtr("  Result store: s3 %s/%s\n", c.S3Endpoint, c.S3Bucket)
		fmtr("    Access key: %s\n", MaskSecret(c.S3AccessKey))
		fmtr("    Secret key: %s\n", MaskSecret(c.S3SecretKey))
	default:
		fmtr("  Result store: ✗ Disabled (paths are not verified)\n")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
