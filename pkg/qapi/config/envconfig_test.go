package config

import (
	"strings"
	"testing"
)

func TestValidateEnvDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	if cfg.Port != "5000" || cfg.MetricsPort != "9090" {
		t.Errorf("Unexpected ports %s/%s", cfg.Port, cfg.MetricsPort)
	}
	if cfg.ResultStore != StoreNone || !cfg.S3UseSSL {
		t.Errorf("Unexpected store defaults %+v", cfg)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &EnvConfig{
		AuthSecret:    "short",
		LogLevel:      "loud",
		PrometheusURL: "not a url",
		ResultStore:   StoreS3,
		S3AccessKey:   "key",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation to fail")
	}
	for _, want := range []string{"AUTH_SECRET", "LOG_LEVEL", "PROMETHEUS_URL", "S3_BUCKET", "S3_SECRET_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %s in %v", want, err)
		}
	}
}

func TestValidateResultStore(t *testing.T) {
	cfg := &EnvConfig{LogLevel: "info", ResultStore: StoreFile}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "RESULT_LOCAL_ROOT") {
		t.Errorf("Expected RESULT_LOCAL_ROOT error, got %v", err)
	}
	cfg.ResultLocalRoot = "/srv/home"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected file store to validate, got %v", err)
	}
	cfg.ResultStore = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected unknown store to fail")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":                 "<not set>",
		"short":            "***",
		"0123456789abcdef": "0123...cdef",
	}
	for in, want := range tests {
		if got := MaskSecret(in); got != want {
			t.Errorf("MaskSecret(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestPrintMasksSecrets(t *testing.T) {
	cfg := &EnvConfig{AuthSecret: "0123456789abcdef0123456789abcdef", ResultStore: StoreS3, S3SecretKey: "supersecretvalue"}
	var out strings.Builder
	cfg.Print(func(format string, args ...interface{}) {
		out.WriteString(format)
		for _, a := range args {
			if s, ok := a.(string); ok {
				out.WriteString(s)
			}
		}
	})
	if strings.Contains(out.String(), "supersecretvalue") || strings.Contains(out.String(), cfg.AuthSecret) {
		t.Errorf("Expected secrets to be masked, got %s", out.String())
	}
}
