// Command satgate-agent is the process entrypoint of spec.md §4.L: it
// wires the config store, orchestrator, and boundary façade together,
// starts a prometheus metrics endpoint, and runs until terminated.
// Modeled on the teacher's cmd/server entrypoints (flag-parsed config,
// tint-formatted slog logger, signal.NotifyContext, a best-effort
// metrics HTTP server shut down alongside the main context).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/satgate/internal/configstore"
	"github.com/malbeclabs/satgate/internal/facade"
	"github.com/malbeclabs/satgate/internal/orchestrator"
	"github.com/malbeclabs/satgate/internal/subscriber"
	"github.com/malbeclabs/satgate/internal/telemetry"
	"github.com/malbeclabs/satgate/internal/verdictcache"
)

const defaultMetricsShutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type config struct {
	Verbose     bool
	MetricsAddr string

	PrivateDir  string
	OverlayPath string

	HomeCountryCode           string
	FeatureEnabled            bool
	MockModemAllowed          bool
	SatelliteSupported        bool
	SatelliteProvisioned      bool
	LocationPermissionGranted bool
}

func loadConfig() config {
	var cfg config

	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", ":2112"), "address to listen on for prometheus metrics (env: METRICS_ADDR)")

	flag.StringVar(&cfg.PrivateDir, "private-dir", getenv("SATGATE_PRIVATE_DIR", "/var/lib/satgate"), "private directory for persisted state and the config-updater range file (env: SATGATE_PRIVATE_DIR)")
	flag.StringVar(&cfg.OverlayPath, "overlay-path", getenv("SATGATE_OVERLAY_PATH", ""), "path to the overlay defaults JSON file (env: SATGATE_OVERLAY_PATH)")

	flag.StringVar(&cfg.HomeCountryCode, "home-country-code", getenv("SATGATE_HOME_CC", ""), "stub network country code reported while no platform telephony stack is wired in (env: SATGATE_HOME_CC)")
	flag.BoolVar(&cfg.FeatureEnabled, "feature-enabled", true, "whether the satellite-allowed feature is enabled")
	flag.BoolVar(&cfg.MockModemAllowed, "mock-modem-allowed", false, "permit SetTestOverride, mirroring the platform's mock-modem-allowed system property")
	flag.BoolVar(&cfg.SatelliteSupported, "satellite-supported", true, "stub answer for the satellite-supported precondition")
	flag.BoolVar(&cfg.SatelliteProvisioned, "satellite-provisioned", true, "stub answer for the satellite-provisioned precondition")
	flag.BoolVar(&cfg.LocationPermissionGranted, "location-permission-granted", false, "stub answer for the location-permission-granted on-device branch condition")

	flag.Parse()
	return cfg
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func run() error {
	cfg := loadConfig()
	log := newLogger(cfg.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	metricsErrCh := startMetricsServer(ctx, log, cfg.MetricsAddr, reg, defaultMetricsShutdownTimeout)

	clock := clockwork.NewRealClock()

	store, err := configstore.New(configstore.Config{
		Logger:     log,
		Clock:      clock,
		PrivateDir: cfg.PrivateDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create config store: %w", err)
	}
	if cfg.OverlayPath != "" {
		if err := store.LoadOverlay(cfg.OverlayPath); err != nil {
			return fmt.Errorf("failed to load overlay config: %w", err)
		}
	}

	subs := subscriber.New()
	anomalyLog := &telemetry.SlogAnomalyReporter{Log: log, Metrics: metrics}

	orch, err := orchestrator.New(orchestrator.Config{
		Logger:           log,
		Clock:            clock,
		CountryDetector:  &staticCountryDetector{homeCC: cfg.HomeCountryCode},
		LocationProvider: unavailableLocationProvider{},
		SatelliteStatus:  &alwaysSatelliteStatus{supported: cfg.SatelliteSupported, provisioned: cfg.SatelliteProvisioned},
		Emergency:        neverEmergency{},
		Permission:       alwaysPermission{granted: cfg.LocationPermissionGranted},
		ConfigStore:      store,
		Metrics:          metrics,
		AnomalyLog:       anomalyLog,
		Subscribers:      subs,
		VerdictCache:     verdictcache.New(),
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	f, err := facade.New(ctx, facade.Config{
		Logger:           log,
		Orchestrator:     orch,
		ConfigStore:      store,
		Subscribers:      subs,
		FeatureEnabled:   func() bool { return cfg.FeatureEnabled },
		MockModemAllowed: func() bool { return cfg.MockModemAllowed },
	})
	if err != nil {
		return fmt.Errorf("failed to create facade: %w", err)
	}

	log.Info("satgate-agent running", "private_dir", cfg.PrivateDir, "feature_enabled", cfg.FeatureEnabled)

	select {
	case err, ok := <-metricsErrCh:
		if ok && err != nil {
			return fmt.Errorf("metrics server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultMetricsShutdownTimeout)
	defer shutdownCancel()
	if err := f.Shutdown(shutdownCtx); err != nil {
		log.Warn("facade shutdown did not complete cleanly", "error", err)
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level}))
}

func startMetricsServer(ctx context.Context, log *slog.Logger, addr string, reg *prometheus.Registry, shutdownTimeout time.Duration) <-chan error {
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			errCh <- err
			return
		}
		defer listener.Close()

		log.Info("prometheus metrics server listening", "address", listener.Addr().String())

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpSrv := &http.Server{Handler: mux}

		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpSrv.Shutdown(sctx)
		}()

		err = httpSrv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		if err != nil {
			errCh <- err
		}
	}()

	return errCh
}
