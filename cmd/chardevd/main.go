// chardevd hosts a fixed set of in-memory character devices.
//
// Each device holds one byte buffer that is replaced on every write and read
// sequentially through per-handle offsets. Devices are announced through an
// in-memory node table or over MQTT, and can be driven through the HTTP API
// or the interactive console. Lifecycle events may be audited to SQLite and
// IO counters streamed to InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/chardev-core/internal/api"
	"github.com/nerrad567/chardev-core/internal/audit"
	"github.com/nerrad567/chardev-core/internal/chardev"
	"github.com/nerrad567/chardev-core/internal/console"
	"github.com/nerrad567/chardev-core/internal/infrastructure/config"
	"github.com/nerrad567/chardev-core/internal/infrastructure/database"
	"github.com/nerrad567/chardev-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/chardev-core/internal/infrastructure/logging"
	"github.com/nerrad567/chardev-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/chardev-core/internal/iometrics"
	"github.com/nerrad567/chardev-core/internal/nodes"
	"github.com/nerrad567/chardev-core/migrations"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds teardown work that runs after ctx is cancelled.
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled (or the console
// quits) and tears everything down in reverse order.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear startup sequence
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := logging.Default()
	log.Info("starting chardevd",
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

	reg, err := newRegistry(cfg.Devices)
	if err != nil {
		return fmt.Errorf("creating device registry: %w", err)
	}

	// The console owns the terminal, so logs are routed through it.
	var cons *console.Console
	if cfg.Console.Enabled {
		cons, err = console.New(reg, cfg.Console.Prompt)
		if err != nil {
			return fmt.Errorf("starting console: %w", err)
		}
		defer cons.Close() //nolint:errcheck // Terminal teardown
		log = logging.NewWithWriter(cfg.Logging, version, cons.Stdout())
	} else {
		log = logging.New(cfg.Logging, version)
	}
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Audit trail (optional)
	var (
		db            *database.DB
		auditRepo     audit.Repository
		auditRecorder *audit.Recorder
	)
	if cfg.Audit.Enabled {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		auditRepo = audit.NewSQLiteRepository(db.DB)
		auditRecorder = audit.NewRecorder(auditRepo, cfg.Audit.QueueSize)
		auditRecorder.SetLogger(log.Component("audit"))
		auditRecorder.Start()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if stopErr := auditRecorder.Stop(stopCtx); stopErr != nil {
				log.Warn("audit recorder did not drain", "error", stopErr)
			}
			if dropped := auditRecorder.Dropped(); dropped > 0 {
				log.Warn("audit events dropped", "count", dropped)
			}
		}()
	} else {
		log.Info("audit trail disabled")
	}

	// Node visibility: in-memory table, optionally announced over MQTT
	table := nodes.NewTable()
	var (
		publisher  chardev.Publisher = table
		mqttClient *mqtt.Client
	)
	if cfg.Nodes.Backend == config.NodesBackendMQTT {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Nodes.TopicPrefix)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected", "status_topic", mqttClient.StatusTopic())
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		enc, encErr := nodes.ParseEncoding(cfg.Nodes.Encoding)
		if encErr != nil {
			return fmt.Errorf("node encoding: %w", encErr)
		}
		mp := nodes.NewMQTTPublisher(mqttClient, table, nodes.Topics{Prefix: cfg.Nodes.TopicPrefix}, enc, byte(cfg.MQTT.QoS)) // #nosec G115 -- validated 0..2
		mp.SetLogger(log.Component("nodes"))
		publisher = mp
	}

	// IO metrics, optionally streamed to InfluxDB
	var influxClient *influxdb.Client
	var pointWriter iometrics.PointWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		pointWriter = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}
	ioRecorder := iometrics.NewRecorder(pointWriter)

	// Devices
	observers := chardev.Observers{ioRecorder}
	if auditRecorder != nil {
		observers = append(observers, auditRecorder)
	}
	reg.SetLogger(log.Component("registry"))
	reg.SetPublisher(publisher)
	reg.SetObserver(observers)

	if initErr := reg.Initialize(ctx); initErr != nil {
		if !reg.Ready() {
			return fmt.Errorf("initialising devices: %w", initErr)
		}
		log.Warn("some devices are unavailable", "error", initErr)
	}
	defer func() {
		teardownCtx, teardownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer teardownCancel()
		if tdErr := reg.Teardown(teardownCtx); tdErr != nil {
			log.Warn("device teardown incomplete", "error", tdErr)
		}
	}()

	// HTTP API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			Logger:    log.Component("api"),
			Registry:  reg,
			Metrics:   ioRecorder,
			AuditRepo: auditRepo,
			Nodes:     table,
			Version:   version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cons != nil {
		go func() {
			if runErr := cons.Run(ctx); runErr != nil {
				log.Error("console error", "error", runErr)
			}
			cancel()
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"devices", reg.Count(),
		"class", reg.ClassName(),
	)
	<-ctx.Done()

	log.Info("shutting down")
	return nil
}

// newRegistry converts the devices config section into a Registry.
func newRegistry(cfg config.DevicesConfig) (*chardev.Registry, error) {
	mode, err := cfg.FileMode()
	if err != nil {
		return nil, err
	}
	return chardev.NewRegistry(chardev.Config{
		Count:     cfg.Count,
		Capacity:  cfg.Capacity,
		ClassName: cfg.ClassName,
		Mode:      mode,
	})
}

// getConfigPath returns CHARDEV_CONFIG when set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("CHARDEV_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the optional infrastructure connections. Nil
// components are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	var errs []error
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	return errors.Join(errs...)
}
