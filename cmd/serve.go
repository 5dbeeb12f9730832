package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sagan/gridgen/internal/api"
	"github.com/sagan/gridgen/internal/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pools, autoscalers, dispatcher and sweep loop in the foreground",
	Long: `Run the pools, autoscalers, dispatcher and sweep loop in the foreground.

Exposes Prometheus metrics on --metrics-addr. Submitted tasks are only
reachable for the lifetime of this process - there is no persistence across
restarts.`,
	RunE: doServe,
	Args: cobra.ExactArgs(0),
}

var (
	flagMetricsAddr string
	flagAPIAddr     string
)

func init() {
	serveCmd.Flags().StringVarP(&flagMetricsAddr, "metrics-addr", "", ":9090", "Prometheus /metrics listen address")
	serveCmd.Flags().StringVarP(&flagAPIAddr, "api-addr", "", ":8080", "Task HTTP API listen address")
	RootCmd.AddCommand(serveCmd)
}

func doServe(c *cobra.Command, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt.Start(ctx)
	defer rt.Stop()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: flagMetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	apiSrv := &http.Server{Addr: flagAPIAddr, Handler: api.New(rt.Orchestrator, rt.Store).Router()}
	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("task api server stopped")
		}
	}()

	log.WithFields(log.Fields{"metrics_addr": flagMetricsAddr, "api_addr": flagAPIAddr}).Info("gridgen serving")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	_ = apiSrv.Shutdown(shutdownCtx)

	return nil
}
