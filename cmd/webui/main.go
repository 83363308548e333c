// webui serves a read-only HTML view of the attractions catalog, reloading it
// from the store on a fixed period.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attractions/backends"
	"attractions/catalog"
	"attractions/config"
	"attractions/healthz"
	"attractions/httpmetrics"
	"attractions/poller"
	"attractions/webui"

	"cloud.google.com/go/profiler"
	"contrib.go.opencensus.io/exporter/stackdriver"
	cloudmetrics "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	cloudtrace "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/spf13/pflag"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	debugListen   = pflag.String("debug-listen", "127.0.0.1:8001", "Server address:port for debug endpoint.")
	uiListen      = pflag.String("ui-listen", "127.0.0.1:8000", "Server address:port for ui endpoint.")
	refreshPeriod = pflag.Duration("refresh-period", 5*time.Minute, "Time between catalog reloads.")

	monitoring           = pflag.Bool("monitoring", false, "Enable monitoring?")
	monitoringProject    = pflag.String("monitoring-project", "", "Override project used for monitoring integration.  If not specified, the project associated with Application Default Credentials is used.")
	monitoringTraceRatio = pflag.Float64("monitoring-trace-ratio", 0.0001, "What ratio of traces should be exported?")
	enableMetrics        = pflag.Bool("enable-metrics", false, "Export request metrics to Cloud Monitoring?")
	enableProfiling      = pflag.Bool("enable-profiling", false, "Enable Cloud Profiler?")
)

func main() {
	config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	slog.Info("Starting up")
	slog.Info(
		"Flags",
		slog.String("debug-listen", *debugListen),
		slog.String("ui-listen", *uiListen),
		slog.Duration("refresh-period", *refreshPeriod),
		slog.Bool("monitoring", *monitoring),
		slog.String("monitoring-project", *monitoringProject),
		slog.Float64("monitoring-trace-ratio", *monitoringTraceRatio),
		slog.Bool("enable-metrics", *enableMetrics),
		slog.Bool("enable-profiling", *enableProfiling),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := do(ctx); err != nil {
		slog.ErrorContext(ctx, "Error", slog.Any("err", err))
		os.Exit(255)
	}
}

func do(ctx context.Context) error {
	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		return fmt.Errorf("while loading configuration: %w", err)
	}
	slog.InfoContext(
		ctx,
		"Configuration",
		slog.String("data-project", cfg.DataProject),
		slog.String("image-bucket", cfg.ImageBucket),
		slog.String("local-data-dir", cfg.LocalDataDir),
		slog.Duration("fetch-timeout", cfg.FetchTimeout),
	)

	// Cloud Profiler initialization, best done as early as possible.
	if *enableProfiling {
		if err := profiler.Start(profiler.Config{
			Service:   "attractions-webui",
			ProjectID: *monitoringProject,
		}); err != nil {
			return fmt.Errorf("while starting profiler: %w", err)
		}
	}

	if *monitoring {
		metricsOpts := []cloudmetrics.Option{}
		traceOpts := []cloudtrace.Option{}
		if *monitoringProject != "" {
			metricsOpts = append(metricsOpts, cloudmetrics.WithProjectID(*monitoringProject))
			traceOpts = append(traceOpts, cloudtrace.WithProjectID(*monitoringProject))
		}

		_, traceShutdown, err := cloudtrace.InstallNewPipeline(traceOpts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(*monitoringTraceRatio)))
		if err != nil {
			return fmt.Errorf("while installing Cloud Trace OpenTelemetry trace pipeline: %w", err)
		}
		defer traceShutdown()

		pusher, err := cloudmetrics.InstallNewPipeline(metricsOpts)
		if err != nil {
			return fmt.Errorf("while installing Cloud Metrics OpenTelemetry meter pipeline: %w", err)
		}
		defer pusher.Stop(ctx)
	}

	if *enableMetrics {
		exporter, err := stackdriver.NewExporter(stackdriver.Options{
			ProjectID:         *monitoringProject,
			MetricPrefix:      "attractions-webui",
			ReportingInterval: 60 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("while creating Stackdriver exporter: %w", err)
		}
		if err := exporter.StartMetricsExporter(); err != nil {
			return fmt.Errorf("while starting Stackdriver metrics exporter: %w", err)
		}
		defer exporter.Flush()
		defer exporter.StopMetricsExporter()
	}

	b, err := backends.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	// The web UI never mutates, so it has no admin gate.
	repo := catalog.New(b.Store, nil, catalog.WithFetchTimeout(cfg.FetchTimeout))

	catalogLoaded := healthz.Check{
		Name: "catalog",
		Check: func(ctx context.Context) error {
			if repo.View() == nil {
				return errors.New("not loaded yet")
			}
			return nil
		},
	}

	debugServeMux := http.NewServeMux()
	debugServeMux.Handle("/healthz", healthz.New())
	debugServeMux.Handle("/readyz", healthz.New(catalogLoaded))
	debugServeMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugServeMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugServeMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugServeMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugServeMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	debugServer := &http.Server{
		Addr:    *debugListen,
		Handler: debugServeMux,

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ui := webui.New(repo)
	uiServeMux := http.NewServeMux()
	ui.Register(uiServeMux)
	metricsWrapper := httpmetrics.New("catalog", uiServeMux)
	if err := metricsWrapper.RegisterMetrics(); err != nil {
		return fmt.Errorf("while registering request metrics: %w", err)
	}
	uiServer := &http.Server{
		Addr:    *uiListen,
		Handler: metricsWrapper,

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	go func() {
		if err := poller.New(repo, *refreshPeriod).Run(pollCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "Poller died", slog.Any("err", err))
		}
	}()

	go func() {
		if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "Debug server died", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	go func() {
		if err := uiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "UI server died", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signalCh
	slog.InfoContext(ctx, "Shutting down", slog.String("signal", sig.String()))

	stopPolling()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := uiServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "Error shutting down UI server", slog.Any("err", err))
	}
	if err := debugServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "Error shutting down debug server", slog.Any("err", err))
	}

	return nil
}
