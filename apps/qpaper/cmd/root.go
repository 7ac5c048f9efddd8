package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"

	"github.com/quatton/qpaper/pkg/k8s"
	"github.com/quatton/qpaper/pkg/qart"
	"github.com/quatton/qpaper/pkg/qconfig"
	"github.com/quatton/qpaper/pkg/qlog"
	"github.com/quatton/qpaper/pkg/qrunner"
	"github.com/quatton/qpaper/pkg/qspec"
)

var (
	cfgFile    string
	namespace  string
	resultsDir string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "qpaper",
		Short: "Run parameterized notebooks as Kubernetes jobs",
		Long: `qpaper turns notebook execution requests into Kubernetes batch Jobs,
tracks them and locates their output notebooks.

Use serve to host the HTTP API, or the jobs subcommands to submit and inspect
jobs straight against the cluster from your kubeconfig.`,
		SilenceUsage: true,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "processors file (YAML). Searches: processors.yaml, /etc/qpaper/processors.yaml")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "namespace of the jobs (default: service account or kubeconfig namespace)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func newLogger() *qlog.Logger {
	if verbose {
		return qlog.NewVerbose()
	}
	return qlog.NewDefault()
}

// newManager wires a Manager for CLI use. Results are verified only when a
// local copy of the home volume is given.
func newManager() (*qrunner.Manager, error) {
	cfg, err := qconfig.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	client, err := k8s.NewClient()
	if err != nil {
		return nil, err
	}
	return buildManager(client, cfg, qrunner.Options{Logger: newLogger()}), nil
}

func buildManager(client kubernetes.Interface, cfg *qconfig.Config, opts qrunner.Options) *qrunner.Manager {
	opts.Namespace = k8s.Namespace(namespace)
	if opts.Locator == nil && resultsDir != "" {
		opts.Locator = qart.NewLocator(qart.NewFileStore(qspec.HomeDir, resultsDir), qart.LocatorConfig{})
	}
	return qrunner.NewManager(client, cfg, opts)
}
