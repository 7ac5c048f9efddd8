package k8s

import (
	"os"
	"path/filepath"
	"testing"
)

const kubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: local
  cluster:
    server: https://127.0.0.1:6443
contexts:
- name: local
  context:
    cluster: local
    user: dev
    namespace: notebooks
current-context: local
users:
- name: dev
  user:
    token: abc
`

func TestNamespaceExplicit(t *testing.T) {
	if ns := Namespace("jobs"); ns != "jobs" {
		t.Errorf("Expected jobs, got %s", ns)
	}
}

func TestNamespaceFromKubeconfig(t *testing.T) {
	if _, err := os.Stat(serviceAccountNamespace); err == nil {
		t.Skip("running inside a pod")
	}
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(kubeconfig), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KUBECONFIG", path)

	if ns := Namespace(""); ns != "notebooks" {
		t.Errorf("Expected notebooks, got %s", ns)
	}
}

func TestNamespaceDefault(t *testing.T) {
	if _, err := os.Stat(serviceAccountNamespace); err == nil {
		t.Skip("running inside a pod")
	}
	t.Setenv("KUBECONFIG", filepath.Join(t.TempDir(), "missing"))

	if ns := Namespace(""); ns != "default" {
		t.Errorf("Expected default, got %s", ns)
	}
}
