package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/nexowatt-vis/internal/api"
	"github.com/nerrad567/nexowatt-vis/internal/audit"
	"github.com/nerrad567/nexowatt-vis/internal/gateway"
	"github.com/nerrad567/nexowatt-vis/internal/history"
	"github.com/nerrad567/nexowatt-vis/internal/hub"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/config"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/database"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/influxdb"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/logging"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/mqtt"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/tsdb"
	"github.com/nerrad567/nexowatt-vis/internal/mirror"
	"github.com/nerrad567/nexowatt-vis/internal/points"
	"github.com/nerrad567/nexowatt-vis/internal/session"
	"github.com/nerrad567/nexowatt-vis/internal/state"
	"github.com/nerrad567/nexowatt-vis/internal/statestore"
	"github.com/nerrad567/nexowatt-vis/internal/web"
	"github.com/nerrad567/nexowatt-vis/migrations"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the dashboard server.

The HTTP surface comes up first and serves whatever is cached. The MQTT
connection is retried with backoff; once it is up every configured point
is subscribed and read, and live changes start flowing to browsers.

The server runs until interrupted (Ctrl+C) or it receives SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return run(ctx, configPath(cmd))
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, path string) error {
	log := logging.Default()
	log.Info("starting NexoWatt VIS",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", path)
	for _, w := range cfg.Warnings() {
		log.Warn("configuration warning", "warning", w)
	}

	table, err := points.LoadFile(cfg.Points.File)
	if err != nil {
		return fmt.Errorf("loading points: %w", err)
	}
	resolver, issues := points.NewResolver(table)
	for _, issue := range issues {
		log.Warn("point mapping issue",
			"key", issue.LogicalKey,
			"external_id", issue.ExternalID,
			"problem", issue.Problem,
		)
	}
	log.Info("points loaded", "file", cfg.Points.File, "points", resolver.Len(), "scopes", len(resolver.Scopes()))

	var (
		db        *database.DB
		auditRepo audit.Repository
	)
	if cfg.Database.Enabled {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		auditRepo = audit.NewSQLiteRepository(db.DB)
		log.Info("audit log enabled", "path", cfg.Database.Path)
	}

	series := openHistory(ctx, cfg, log)
	defer series.close(log)

	link := &mqttLink{}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := link.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	store := statestore.NewMQTT(link)

	h := hub.New(log)
	engine := mirror.New(resolver, state.NewCache(), h, store, mirror.Options{
		ReadTimeout:     cfg.Points.ReadTimeout,
		ReadConcurrency: cfg.Points.ReadConcurrency,
		SeedDefaults:    cfg.Points.SeedDefaults,
	})
	engine.SetLogger(log)
	if series.recorder.Len() > 0 {
		engine.SetRecorder(series.recorder)
	}

	gate := session.NewGate(session.Options{
		Secret:     cfg.Installer.Secret,
		SecretHash: cfg.Installer.SecretHash,
		TTL:        cfg.Installer.SessionTTL,
	})

	checks := map[string]api.HealthChecker{"mqtt": link}
	if db != nil {
		checks["database"] = db
	}
	series.addChecks(checks)

	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		SSE:       cfg.SSE,
		UI:        cfg.UI,
		Logger:    log,
		Engine:    engine,
		Hub:       h,
		Resolver:  resolver,
		Gateway:   gateway.New(resolver, gate, store),
		Gate:      gate,
		History:   series.service,
		AuditRepo: auditRepo,
		Store:     store,
		DB:        db,
		Broker:    link,
		Checks:    checks,
		Assets:    web.Handler(cfg.UI.AssetsDir),
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	if err := srv.HealthCheck(ctx); err != nil {
		return fmt.Errorf("API server health check: %w", err)
	}
	log.Info("API server listening", "addr", srv.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return startIngestion(gctx, cfg.MQTT, link, engine, log)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// startIngestion connects to the broker, retrying with backoff, then
// subscribes and reads every point. It returns once ingestion is running.
func startIngestion(ctx context.Context, cfg config.MQTTConfig, link *mqttLink, engine *mirror.Engine, log *logging.Logger) error {
	client, err := mqtt.ConnectWithRetry(ctx, cfg, log)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	link.attach(client)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	report, err := engine.Start(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("starting ingestion: %w", err)
	}
	log.Info("ingestion started",
		"points", report.Points,
		"subscribed", report.Subscribed,
		"read", report.Read,
		"missing", report.Missing,
		"seeded", report.Seeded,
		"failed", report.Failed,
	)
	return nil
}

// historyStack is the optional time-series side: the query service and
// the recorder fed by ingestion.
type historyStack struct {
	influx   *influxdb.Client
	tsdb     *tsdb.Client
	service  *history.Service
	recorder *history.Recorder
}

// openHistory connects the enabled time-series backends. A backend that
// cannot be reached is logged and left out; the dashboard works without it.
func openHistory(ctx context.Context, cfg *config.Config, log *logging.Logger) *historyStack {
	hs := &historyStack{}
	var writers []history.Writer

	if cfg.InfluxDB.Enabled {
		c, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, continuing without it", "url", cfg.InfluxDB.URL, "error", err)
		} else {
			c.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			hs.influx = c
			writers = append(writers, c)
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	if cfg.TSDB.Enabled {
		c, err := tsdb.Connect(ctx, cfg.TSDB)
		if err != nil {
			log.Warn("VictoriaMetrics unavailable, continuing without it", "url", cfg.TSDB.URL, "error", err)
		} else {
			c.SetOnError(func(err error) {
				log.Error("VictoriaMetrics write error", "error", err)
			})
			hs.tsdb = c
			writers = append(writers, c)
			log.Info("VictoriaMetrics connected", "url", cfg.TSDB.URL)
		}
	}

	hs.recorder = history.NewRecorder(writers...)
	hs.service = history.NewService(hs.backend(cfg.History.Backend), cfg.History.Series, cfg.History.MaxPoints)
	if hs.service.Enabled() {
		log.Info("history enabled", "backend", hs.service.Backend(), "series", len(cfg.History.Series))
	}
	return hs
}

// backend picks the query backend: the named one, else whichever is connected.
func (hs *historyStack) backend(name string) history.Backend {
	switch {
	case name == "influxdb" && hs.influx != nil:
		return history.InfluxBackend(hs.influx)
	case name == "tsdb" && hs.tsdb != nil:
		return history.TSDBBackend(hs.tsdb)
	case name == "" && hs.influx != nil:
		return history.InfluxBackend(hs.influx)
	case name == "" && hs.tsdb != nil:
		return history.TSDBBackend(hs.tsdb)
	}
	return nil
}

// addChecks registers the connected backends for health probing.
func (hs *historyStack) addChecks(checks map[string]api.HealthChecker) {
	if hs.influx != nil {
		checks["influxdb"] = hs.influx
	}
	if hs.tsdb != nil {
		checks["tsdb"] = hs.tsdb
	}
}

func (hs *historyStack) close(log *logging.Logger) {
	if hs.influx != nil {
		log.Info("closing InfluxDB connection")
		if err := hs.influx.Close(); err != nil {
			log.Error("error closing InfluxDB", "error", err)
		}
	}
	if hs.tsdb != nil {
		log.Info("closing VictoriaMetrics connection")
		if err := hs.tsdb.Close(); err != nil {
			log.Error("error closing VictoriaMetrics", "error", err)
		}
	}
}
