package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quatton/qpaper/pkg/k8s"
	"github.com/quatton/qpaper/pkg/qapi"
	"github.com/quatton/qpaper/pkg/qapi/config"
	"github.com/quatton/qpaper/pkg/qapi/routes"
	"github.com/quatton/qpaper/pkg/qapi/services"
	"github.com/quatton/qpaper/pkg/qart"
	"github.com/quatton/qpaper/pkg/qconfig"
	"github.com/quatton/qpaper/pkg/qlog"
	"github.com/quatton/qpaper/pkg/qmetrics"
	"github.com/quatton/qpaper/pkg/qrunner"
	"github.com/quatton/qpaper/pkg/qspec"
	"github.com/quatton/qpaper/pkg/qusage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the process execution API",
	Long: `Serve the HTTP API for notebook processes and jobs. Configuration comes
from the environment (PORT, PROCESSORS_FILE, K8S_NAMESPACE, AUTH_SECRET,
RESULT_STORE, PROMETHEUS_URL, ...); a .env file is read in development.

Metrics are exposed on METRICS_PORT at /metrics.`,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.ValidateEnv()
	if err != nil {
		log.Fatalf("❌ %v\n", err)
	}
	cfg.Print(log.Printf)

	level, _ := qlog.ParseLevel(cfg.LogLevel)
	logger := qlog.NewJSON(level, os.Stdout)
	if config.IsProd() && cfg.AuthSecret == "" {
		logger.Warn("API authentication disabled - no AUTH_SECRET configured")
	}

	if cfg.ProcessorsFile != "" {
		cfgFile = cfg.ProcessorsFile
	}
	processors, err := qconfig.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	client, err := k8s.NewClient()
	if err != nil {
		return fmt.Errorf("connecting to the cluster: %w", err)
	}
	if cfg.Namespace != "" {
		namespace = cfg.Namespace
	}
	ns := k8s.Namespace(namespace)

	metrics, metricsHandler, err := qmetrics.NewMetrics(ctx)
	if err != nil {
		return err
	}

	store, err := services.NewResultStore(cfg)
	if err != nil {
		return err
	}
	var usage qrunner.UsageReader
	if cfg.PrometheusURL != "" {
		u, err := qusage.New(cfg.PrometheusURL, ns, qspec.MainContainerName)
		if err != nil {
			return err
		}
		usage = u
	}

	manager := buildManager(client, processors, qrunner.Options{
		Locator: qart.NewLocator(store, qart.LocatorConfig{}),
		Logger:  logger,
		Metrics: metrics,
		Usage:   usage,
	})

	api := qapi.NewApi(metrics)
	routes.RegisterAPI(api.Api, services.NewServices(cfg, manager))

	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 2)
	go func() {
		logger.Info("starting API server", "port", cfg.Port, "namespace", ns, "processors", len(processors.Processors))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	go func() {
		logger.Info("starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Printf("📚 OpenAPI docs: http://localhost:%s/docs\n", cfg.Port)
	log.Printf("📄 OpenAPI spec: http://localhost:%s/openapi.json\n", cfg.Port)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-sigCtx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-serverErr:
		logger.Error("server failed", "error", runErr)
	}

	// Jobs keep running in the cluster, nothing to drain here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return runErr
}
