// Package k8s bootstraps the cluster client used by the job manager.
package k8s

import (
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// serviceAccountNamespace is where the kubelet projects the pod's namespace.
const serviceAccountNamespace = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// NewClient creates a Kubernetes clientset.
// It first tries in-cluster config (service account), then falls back to kubeconfig.
func NewClient() (kubernetes.Interface, error) {
	config, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(config)
}

// GetConfig returns a Kubernetes REST config.
// Priority: in-cluster config > KUBECONFIG env > ~/.kube/config
func GetConfig() (*rest.Config, error) {
	if config, err := rest.InClusterConfig(); err == nil {
		return config, nil
	}

	kubeconfig, err := kubeconfigPath()
	if err != nil {
		return nil, err
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// Namespace picks the namespace jobs are created in. An explicit value wins,
// then the pod's own namespace, then the kubeconfig context, then "default".
func Namespace(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if data, err := os.ReadFile(serviceAccountNamespace); err == nil {
		if ns := strings.TrimSpace(string(data)); ns != "" {
			return ns
		}
	}
	if path, err := kubeconfigPath(); err == nil {
		rules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: path}
		cfg := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{})
		if ns, _, err := cfg.Namespace(); err == nil && ns != "" {
			return ns
		}
	}
	return "default"
}

func kubeconfigPath() (string, error) {
	if kubeconfig := os.Getenv("KUBECONFIG"); kubeconfig != "" {
		return kubeconfig, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kube", "config"), nil
}
