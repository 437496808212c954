// Annunciator Core - network speaker control service.
//
// This is the main entry point. It loads configuration, opens the speaker
// registry and serves the HTTP API used by VMS integrations and the web UI.
//
// Usage:
//
//	annunciator                 run the service
//	annunciator hash-password   read a password on stdin, print its argon2id hash
//	annunciator migrate-down    roll back the most recent database migration
//	annunciator version         print build information
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/nerrad567/annunciator-core/migrations"

	"github.com/nerrad567/annunciator-core/internal/api"
	"github.com/nerrad567/annunciator-core/internal/audit"
	"github.com/nerrad567/annunciator-core/internal/auth"
	"github.com/nerrad567/annunciator-core/internal/device"
	"github.com/nerrad567/annunciator-core/internal/dispatch"
	"github.com/nerrad567/annunciator-core/internal/events"
	"github.com/nerrad567/annunciator-core/internal/infrastructure/config"
	"github.com/nerrad567/annunciator-core/internal/infrastructure/database"
	"github.com/nerrad567/annunciator-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/annunciator-core/internal/infrastructure/logging"
	"github.com/nerrad567/annunciator-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/annunciator-core/internal/speaker"
	"github.com/nerrad567/annunciator-core/internal/webui"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 {
		err = runCommand(ctx, os.Args[1], os.Stdin, os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runCommand executes a one-shot subcommand.
func runCommand(ctx context.Context, name string, stdin io.Reader, stdout io.Writer) error {
	switch name {
	case "hash-password":
		return hashPassword(stdin, stdout)
	case "migrate-down":
		return migrateDown(ctx)
	case "version":
		_, err := fmt.Fprintf(stdout, "annunciator %s (commit %s, built %s)\n", version, commit, date)
		return err
	default:
		return fmt.Errorf("unknown command %q (want hash-password, migrate-down or version)", name)
	}
}

// hashPassword reads one line from stdin and prints its PHC hash, ready for
// security.admin.password_hash.
func hashPassword(stdin io.Reader, stdout io.Writer) error {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func migrateDown(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return db.MigrateDown(ctx)
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Annunciator Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("configuration loaded",
		"path", configPath,
		"registry_backend", cfg.Registry.Backend,
		"auth_enabled", cfg.Security.AuthEnabled,
	)

	bus := events.NewBus(log, events.Options{
		BufferSize:       cfg.Events.BufferSize,
		SubscriberBuffer: cfg.Events.SubscriberBuffer,
		ForwardQueue:     cfg.Events.ForwardQueue,
	})
	checks := make(map[string]api.HealthChecker)

	// Database: audit trail, and the registry when backend is sqlite.
	db, err := database.OpenMigrated(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	checks["database"] = db
	log.Info("database ready", "path", db.Path())

	auditRepo := audit.NewSQLiteRepository(db.DB)
	bus.AddForwarder("audit", audit.NewRecorder(auditRepo))

	// InfluxDB command metrics (optional)
	var metrics dispatch.MetricsRecorder
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
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
		checks["influxdb"] = influxClient
		metrics = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT event mirror and command ingress (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		checks["mqtt"] = mqttClient

		bus.AddForwarder("mqtt", mqtt.NewEventMirror(mqttClient, mqttClient.Topics(), mqttClient.QoS()))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Forwarders are drained before the clients they write to are closed.
	busCtx, stopBus := context.WithCancel(context.WithoutCancel(ctx))
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		bus.Run(busCtx)
	}()
	defer func() {
		stopBus()
		<-busDone
	}()

	registry := device.NewRegistry(openStore(cfg, db))
	registry.SetLogger(log)
	registry.SetEventSink(bus)
	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading registry: %w", loadErr)
	}
	stats := registry.Stats()
	log.Info("registry loaded", "speakers", stats.Devices, "groups", stats.Groups)

	client := speaker.NewClient(cfg.GetRequestTimeout(), speaker.WithLogger(log))
	defer client.Close()

	dispatchOpts := []dispatch.Option{
		dispatch.WithTimeout(cfg.GetRequestTimeout()),
		dispatch.WithEventSink(bus),
		dispatch.WithLogger(log),
	}
	if metrics != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithMetrics(metrics))
	}
	dispatcher := dispatch.New(registry, client, dispatchOpts...)

	if mqttClient != nil {
		bridge := dispatch.NewCommandBridge(dispatcher, mqttClient)
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT command bridge: %w", startErr)
		}
		defer bridge.Stop()
		log.Info("MQTT command bridge started", "topic", mqttClient.Topics().AllCommands())
	}

	var authenticator *auth.Authenticator
	if cfg.Security.AuthEnabled {
		authenticator, err = auth.NewAuthenticator(cfg.Security)
		if err != nil {
			return fmt.Errorf("configuring authentication: %w", err)
		}
	} else {
		log.Warn("management API authentication is disabled")
	}

	apiCfg := cfg.API
	if apiCfg.Port == 0 {
		apiCfg.Port = registry.Port()
	}

	deps := api.Deps{
		Config:     apiCfg,
		WS:         cfg.WebSocket,
		Logger:     log,
		Registry:   registry,
		Dispatcher: dispatcher,
		Bus:        bus,
		Auth:       authenticator,
		Audit:      auditRepo,
		Checks:     checks,
		Version:    version,
	}
	if cfg.Web.Enabled {
		deps.UI = webui.Handler(cfg.Web.Dir)
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())

	<-ctx.Done()

	// Deferred cleanup: API server, in-flight MQTT commands and the speaker
	// client go first, then the bus drains its forwarders before MQTT,
	// InfluxDB and the database close.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openStore returns the registry store selected by registry.backend.
func openStore(cfg *config.Config, db *database.DB) device.Store {
	if cfg.Registry.Backend == config.BackendSQLite {
		return device.NewSQLiteStore(db.DB)
	}
	return device.NewFileStore(cfg.Registry.Path)
}

// getConfigPath returns the configuration file path.
// Uses ANNUNCIATOR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ANNUNCIATOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
