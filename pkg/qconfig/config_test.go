package qconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const processorsYAML = `
processors:
  - id: notebook-exec
    defaultImage: eurodatacube/jupyter-user:0.19.6
    outputDirectory: /home/jovyan/result/
    homeVolumeClaimName: user-home
    jupyterBaseUrl: https://hub.example.com/
    defaultKernels:
      - imagePrefix: eurodatacube/jupyter-user
        kernel: edc
      - imagePrefix: eurodatacube/jupyter-user-g
        kernel: edc-gpu
    s3:
      bucketName: results
      secretName: s3-credentials
      s3Url: https://s3.example.com
    secrets:
      - name: api-keys
      - name: db
        access: env
    checkoutGitRepo:
      url: https://git.example.com/algo.git
      secretName: git-credentials
    allowedNodePurposesRegex: "gpu-.*"
    mountWait:
      timeout: 30s
    tolerations:
      - key: hub.eox.at/gpu
        operator: Exists
        effect: NoSchedule
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "processors.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, processorsYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	p, ok := cfg.Lookup("notebook-exec")
	if !ok {
		t.Fatal("Expected processor notebook-exec")
	}
	if p.OutputDirectory != "/home/jovyan/result" {
		t.Errorf("Expected trailing slash trimmed, got %s", p.OutputDirectory)
	}
	if p.JupyterBaseURL != "https://hub.example.com" {
		t.Errorf("Expected trimmed base url, got %s", p.JupyterBaseURL)
	}
	if p.S3 == nil || p.S3.BucketName != "results" {
		t.Errorf("Expected s3 bucket results, got %+v", p.S3)
	}
	if p.Secrets[0].Access != SecretAccessMount || p.Secrets[1].Access != SecretAccessEnv {
		t.Errorf("Unexpected secret access modes: %+v", p.Secrets)
	}
	if p.MountWait.Timeout != 30*time.Second {
		t.Errorf("Expected mount timeout 30s, got %s", p.MountWait.Timeout)
	}
	if p.MountWait.InitialDelay != 100*time.Millisecond || p.MountWait.MaxDelay != 2*time.Second {
		t.Errorf("Expected default backoff, got %+v", p.MountWait)
	}
	if p.NodePurposeLabelKey != DefaultNodePurposeLabelKey {
		t.Errorf("Expected default label key, got %s", p.NodePurposeLabelKey)
	}
	if p.SidecarMode != SidecarNative {
		t.Errorf("Expected native sidecar mode, got %s", p.SidecarMode)
	}
	if p.JobTTL != DefaultJobTTL {
		t.Errorf("Expected default ttl, got %s", p.JobTTL)
	}
	if len(p.Tolerations) != 1 || p.Tolerations[0].Effect != "NoSchedule" {
		t.Errorf("Unexpected tolerations: %+v", p.Tolerations)
	}
	if cfg.ConfigFileUsed() == "" {
		t.Error("Expected config file to be recorded")
	}
}

func TestKernelFor(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, processorsYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	p, _ := cfg.Lookup("notebook-exec")

	cases := map[string]string{
		"eurodatacube/jupyter-user:0.19.6":   "edc",
		"eurodatacube/jupyter-user-g:0.19.6": "edc-gpu",
		"jupyter/base-notebook":              "",
	}
	for image, want := range cases {
		if got := p.KernelFor(image); got != want {
			t.Errorf("KernelFor(%s): expected %q, got %q", image, want, got)
		}
	}
}

func TestLoadConfigValidation(t *testing.T) {
	content := `
processors:
  - id: broken
    outputDirectory: /out
    allowedNodePurposesRegex: "gpu-("
    s3:
      bucketName: results
    secrets:
      - name: x
        access: file
    jobTtl: -1h
    mountWait:
      initialDelay: 5s
      maxDelay: 1s
  - id: broken
    defaultImage: img
    outputDirectory: /out
`
	_, err := LoadConfig(writeConfig(t, content))
	if err == nil {
		t.Fatal("Expected validation error")
	}

	for _, want := range []string{
		"defaultImage is required",
		"allowedNodePurposesRegex does not compile",
		"s3 needs bucketName and secretName",
		"unknown access",
		"initialDelay must not exceed maxDelay",
		"jobTtl must be between",
		"defined twice",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got:\n%v", want, err)
		}
	}
}

func TestValidateJobTTL(t *testing.T) {
	tests := []struct {
		ttl   time.Duration
		valid bool
	}{
		{DefaultJobTTL, true},
		{MaxJobTTL, true},
		{MaxJobTTL + time.Second, false},
		{-time.Second, false},
	}
	for _, tt := range tests {
		p := Processor{ID: "p", DefaultImage: "img", OutputDirectory: "/out"}
		p.ApplyDefaults()
		p.JobTTL = tt.ttl

		invalid := false
		for _, e := range p.Validate() {
			if strings.Contains(e, "jobTtl") {
				invalid = true
			}
		}
		if invalid == tt.valid {
			t.Errorf("ttl %s: expected valid=%v, got errors %v", tt.ttl, tt.valid, p.Validate())
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	if _, err := LoadConfig(""); err == nil {
		t.Error("Expected error when no processors file exists")
	}
}
