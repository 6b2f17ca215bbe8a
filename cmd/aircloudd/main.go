// AirCloud bridge daemon.
//
// aircloudd polls one AirCloud Home account for its air conditioners and
// exposes them over MQTT, a REST/WebSocket API and Prometheus metrics.
// Control intents from either surface are translated into vendor commands.
//
// Configuration is read from configs/config.yaml, or the file named by
// AIRCLOUD_CONFIG. Account credentials are best supplied through
// AIRCLOUD_ACCOUNT_EMAIL and AIRCLOUD_ACCOUNT_PASSWORD.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/aircloud-bridge/internal/aircloud"
	"github.com/nerrad567/aircloud-bridge/internal/api"
	"github.com/nerrad567/aircloud-bridge/internal/audit"
	"github.com/nerrad567/aircloud-bridge/internal/auth"
	bridge "github.com/nerrad567/aircloud-bridge/internal/bridges/aircloud"
	"github.com/nerrad567/aircloud-bridge/internal/control"
	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
	"github.com/nerrad567/aircloud-bridge/internal/history"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/database"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/aircloud-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// auditQueueSize bounds command log entries waiting for SQLite.
const auditQueueSize = 256

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridge together and blocks until ctx is cancelled or a
// component fails.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting AirCloud bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.FromConfig(cfg, version)
	log.Info("logger initialised",
		"level", log.Level(),
		"format", cfg.Logging.Format,
		"debugging", cfg.AirCloud.EnableDebugging,
	)

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// AirCloud account
	clientOpts := []aircloud.Option{
		aircloud.WithBaseURL(cfg.AirCloud.BaseURL),
		aircloud.WithTimeout(cfg.GetRequestTimeout()),
		aircloud.WithLogger(log.With("component", "aircloud")),
	}
	client := aircloud.NewClient(aircloud.Credentials{
		Email:    cfg.AirCloud.Email,
		Password: cfg.AirCloud.Password,
	}, clientOpts...)

	// Refresh coordinator. statusSink is set once the API exists.
	var statusSink atomic.Pointer[func(coordinator.Status)]
	var coord *coordinator.Coordinator
	coordMetrics := coordinator.NewMetrics()
	if regErr := coordMetrics.Register(registry); regErr != nil {
		return fmt.Errorf("registering coordinator metrics: %w", regErr)
	}
	coord, err = coordinator.New(coordinator.Options{
		API:          client,
		Interval:     cfg.GetUpdateInterval(),
		AlwaysNotify: cfg.AirCloud.AlwaysNotify,
		OnAuthFailed: func(err error) {
			log.Error("refresh suspended until credentials are replaced via POST /api/v1/account/reauth",
				"email", cfg.AirCloud.Email, "error", err)
		},
		OnCycle: func(r coordinator.Result) {
			if influxClient != nil {
				influxClient.WriteRefresh(string(r.Outcome), r.Devices, r.Finished.Sub(r.Started), r.Finished)
			}
			if fn := statusSink.Load(); fn != nil {
				(*fn)(coord.Status())
			}
		},
		Logger:  log.With("component", "coordinator"),
		Metrics: coordMetrics,
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	registry.MustRegister(coordinator.NewMetricsCollector(coord))

	first := coord.FirstRefresh(ctx)
	switch first.Outcome {
	case coordinator.StateSuccess:
		log.Info("first refresh complete", "devices", first.Devices)
	case coordinator.StateAuthFailed:
		return fmt.Errorf("signing in to AirCloud: %w", first.Err)
	default:
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("first refresh failed, retrying on schedule",
			"error", first.Err,
			"interval", cfg.GetUpdateInterval(),
		)
	}

	// Command log and state history
	auditWriter := audit.NewWriter(audit.NewSQLiteRepository(db.DB), auditQueueSize, log.With("component", "audit"))
	historyRepo := history.NewSQLiteRepository(db)
	sink := history.CommandSink{Log: auditWriter}
	recorderOpts := history.RecorderOptions{
		Source:    coord,
		Repo:      historyRepo,
		Retention: time.Duration(cfg.Database.HistoryRetentionDays) * 24 * time.Hour,
		Logger:    log.With("component", "history"),
	}
	if influxClient != nil {
		sink.Telemetry = influxClient
		recorderOpts.Telemetry = influxClient
	}
	recorder := history.NewRecorder(recorderOpts)

	// Control façade
	controlMetrics := control.NewMetrics()
	if regErr := controlMetrics.Register(registry); regErr != nil {
		return fmt.Errorf("registering control metrics: %w", regErr)
	}
	ctrl, err := control.New(control.Options{
		Vendor:   client,
		States:   coord,
		Recorder: sink,
		Logger:   log.With("component", "control"),
		Metrics:  controlMetrics,
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	checks := map[string]api.HealthChecker{"database": db}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	// MQTT bridge (optional)
	var mqttBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttBridge, err = bridge.NewBridge(bridge.BridgeOptions{
			MQTTClient:     mqttClient,
			States:         coord,
			Controller:     ctrl,
			Topics:         mqtt.NewTopics(cfg.MQTT.TopicPrefix),
			QoS:            byte(cfg.MQTT.QoS),
			HealthInterval: cfg.GetHealthInterval(),
			Version:        version,
			Logger:         log.With("component", "bridge"),
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}

		// Retained state may have been lost with the broker; publish it again.
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			mqttBridge.Resync()
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// REST API
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.With("component", "api"),
		Coordinator: coord,
		Controller:  ctrl,
		History:     historyRepo,
		Commands:    audit.NewSQLiteRepository(db.DB),
		Reauth: func(ctx context.Context, creds aircloud.Credentials) error {
			if err := aircloud.ValidateCredentials(ctx, creds, clientOpts...); err != nil {
				return err
			}
			next := aircloud.NewClient(creds, clientOpts...)
			if err := coord.Reauthenticate(next); err != nil {
				return err
			}
			ctrl.SetVendor(next)
			return nil
		},
		Checks:   checks,
		DBStats:  db.Stats,
		Gatherer: registry,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	broadcast := server.BroadcastStatus
	statusSink.Store(&broadcast)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return auditWriter.Run(gctx) })
	g.Go(func() error { return recorder.Run(gctx) })
	g.Go(func() error { return coord.Run(gctx) })
	if mqttBridge != nil {
		g.Go(func() error { return mqttBridge.Run(gctx) })
	}
	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		<-gctx.Done()
		return server.Close()
	})

	log.Info("initialisation complete",
		"devices", len(coord.Snapshot().Devices),
		"update_interval", cfg.GetUpdateInterval(),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("AirCloud bridge stopped")
	return nil
}

// issueToken prints a signed API token.
//
// Usage: aircloudd token -subject NAME [-role viewer|operator|admin] [-ttl 720h]
//
// The secret comes from the loaded configuration, so AIRCLOUD_CONFIG and
// AIRCLOUD_API_JWT_SECRET apply as for the daemon.
func issueToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "who the token is for")
	role := fs.String("role", string(auth.RoleViewer), "viewer, operator or admin")
	ttl := fs.Duration("ttl", 0, "token lifetime; 0 never expires")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is not set; API authentication is disabled")
	}

	token, err := auth.GenerateToken(*subject, auth.Role(*role), cfg.API.Auth.JWTSecret, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// getConfigPath returns the configuration file path.
// Uses AIRCLOUD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AIRCLOUD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
