// Package main is the entry point for the telemetry ingestion pipeline. It
// wires the device-facing ingress, the JetStream work queue, the processing
// pipeline with its Postgres store, the best-effort secondary writers, the
// dead-letter archiver and the operational surface into one process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/SubhajL/munbon2-backend-sub001/archive"
	"github.com/SubhajL/munbon2-backend-sub001/component"
	"github.com/SubhajL/munbon2-backend-sub001/config"
	"github.com/SubhajL/munbon2-backend-sub001/dualwrite"
	"github.com/SubhajL/munbon2-backend-sub001/ingress"
	"github.com/SubhajL/munbon2-backend-sub001/metric"
	"github.com/SubhajL/munbon2-backend-sub001/natsclient"
	"github.com/SubhajL/munbon2-backend-sub001/normalize"
	"github.com/SubhajL/munbon2-backend-sub001/ops"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/timestamp"
	"github.com/SubhajL/munbon2-backend-sub001/processor"
	"github.com/SubhajL/munbon2-backend-sub001/queue"
	"github.com/SubhajL/munbon2-backend-sub001/registry"
	"github.com/SubhajL/munbon2-backend-sub001/storage/postgres"
)

// Build information constants.
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "telemetry-ingest"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("service failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPaths...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		fmt.Println("configuration is valid")
		return nil
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if cliCfg.LogLevel != "" {
		level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		format = cliCfg.LogFormat
	}
	logger := setupLogger(level, format)
	slog.SetDefault(logger)

	slog.Info("starting telemetry ingestion pipeline",
		"version", Version,
		"build_time", BuildTime,
		"environment", cfg.Service.Environment,
		"configs", cliCfg.ConfigPaths)

	ctx := context.Background()
	metricsRegistry := metric.NewMetricsRegistry()

	natsClient, err := connectNATS(ctx, cfg, metricsRegistry, logger)
	if err != nil {
		return err
	}
	defer func() { _ = natsClient.Close(ctx) }()

	if err := queue.EnsureTopology(ctx, natsClient, queue.TopologyConfig{
		AckWait:       cfg.Queue.AckWait.Std(),
		MaxDeliver:    cfg.Queue.MaxDeliver,
		MaxAckPending: cfg.Queue.MaxAckPending,
		MaxAge:        cfg.Queue.MaxAge.Std(),
		DLQMaxAge:     cfg.Queue.DLQMaxAge.Std(),
	}); err != nil {
		return fmt.Errorf("ensure queue topology: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	table, err := buildMappingTable(cfg)
	if err != nil {
		return err
	}

	manager, err := buildPipeline(cfg, natsClient, store, table, metricsRegistry, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, manager, cliCfg.ShutdownTimeout)
}

// connectNATS creates and connects the shared NATS client. Health transitions
// feed the connection gauge and the log.
func connectNATS(ctx context.Context, cfg *config.Config, metrics *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
		natsclient.WithTimeout(cfg.NATS.Timeout.Std()),
		natsclient.WithMetrics(metrics),
		natsclient.WithLogger(logger),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			metrics.CoreMetrics().RecordNATSStatus(healthy)
			if !healthy {
				logger.Warn("nats connection unhealthy")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("connecting to NATS", "url", cfg.NATS.URL)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return client, nil
}

// openStore connects to Postgres and applies migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgres.Store, error) {
	store, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime.Std(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return store, nil
}

// buildMappingTable loads the built-in family mappings plus the optional
// site overlay.
func buildMappingTable(cfg *config.Config) (*normalize.Table, error) {
	table := normalize.NewTable()
	if cfg.Normalize.OverlayPath != "" {
		if err := table.LoadOverlayFile(cfg.Normalize.OverlayPath); err != nil {
			return nil, fmt.Errorf("load mapping overlay: %w", err)
		}
		slog.Info("mapping overlay applied", "path", cfg.Normalize.OverlayPath)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("validate mapping table: %w", err)
	}
	return table, nil
}

// buildPipeline assembles all components in start order: secondary writers
// and the archiver before the processor that feeds them, the processor
// before the ingress that fills its queue, the ops surface last.
func buildPipeline(cfg *config.Config, natsClient *natsclient.Client, store *postgres.Store,
	table *normalize.Table, metrics *metric.MetricsRegistry, logger *slog.Logger) (*component.Manager, error) {

	manager := component.NewManager(logger)

	secondaries, err := buildSecondaryStores(cfg)
	if err != nil {
		return nil, err
	}
	var replicator processor.Replicator
	if len(secondaries) > 0 {
		coordinator := dualwrite.New(dualwrite.Config{
			BufferSize:   cfg.DualWrite.BufferSize,
			WriteTimeout: cfg.DualWrite.WriteTimeout.Std(),
		}, secondaries, metrics.Domain, logger)
		if err := manager.Register(coordinator); err != nil {
			return nil, err
		}
		replicator = coordinator
	}

	if cfg.Archive.Enabled {
		archiver := archive.New(archive.Config{
			Path:      cfg.Archive.Path,
			Retention: cfg.Archive.Retention.Std(),
		}, natsClient, metrics, logger)
		if err := manager.Register(archiver); err != nil {
			return nil, err
		}
	}

	devices := registry.New(store, cfg.Registry.CacheSize, logger)
	normalizer := normalize.NewNormalizer(table, timestamp.FixedZone(cfg.Normalize.TimezoneOffset))
	normalizer.SetStaleAfter(cfg.Normalize.StaleAfter.Std())

	proc := processor.New(processor.Config{
		Workers:    cfg.Processor.Workers,
		QueueSize:  cfg.Processor.QueueSize,
		MaxDeliver: cfg.Queue.MaxDeliver,
		NakDelay:   cfg.Processor.NakDelay.Std(),
	}, natsClient, normalizer, devices, store, replicator, metrics, logger)
	if err := manager.Register(proc); err != nil {
		return nil, err
	}

	ingressSrv := ingress.New(ingress.Config{
		Addr:           cfg.Ingress.Addr,
		MaxBodyBytes:   cfg.Ingress.MaxBodyBytes,
		EnqueueTimeout: cfg.Ingress.EnqueueTimeout.Std(),
		RateLimit:      cfg.Ingress.RateLimit,
		RateBurst:      cfg.Ingress.RateBurst,
	}, queue.NewPublisher(natsClient), table, metrics, logger)
	if err := manager.Register(ingressSrv); err != nil {
		return nil, err
	}

	opsSrv := ops.New(ops.Config{Addr: cfg.Ops.Addr}, manager, devices, metrics, logger)
	if err := manager.Register(opsSrv); err != nil {
		return nil, err
	}

	return manager, nil
}

// buildSecondaryStores creates the enabled best-effort replication targets.
func buildSecondaryStores(cfg *config.Config) ([]dualwrite.SecondaryStore, error) {
	var stores []dualwrite.SecondaryStore

	if cfg.Influx.Enabled {
		influx, err := dualwrite.NewInfluxStore(dualwrite.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("create influx store: %w", err)
		}
		stores = append(stores, influx)
	}

	if cfg.Webhook.Enabled {
		webhook, err := dualwrite.NewWebhookStore(dualwrite.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
			Timeout: cfg.Webhook.Timeout.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("create webhook store: %w", err)
		}
		stores = append(stores, webhook)
	}

	return stores, nil
}

// runWithSignalHandling starts the pipeline and blocks until a shutdown
// signal arrives.
func runWithSignalHandling(ctx context.Context, manager *component.Manager, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := manager.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	slog.Info("telemetry ingestion pipeline started")

	<-signalCtx.Done()
	slog.Info("received shutdown signal")

	if err := manager.StopAll(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}
