// ATC Bridge - BLE thermometer to Home Assistant bridge
//
// This is the main entry point for the ATC bridge. It scans Bluetooth LE
// advertisements from Xiaomi thermometers running ATC/pvvx firmware,
// decodes them and either logs the measurements or publishes them to
// Home Assistant over MQTT with discovery.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/atc-bridge/migrations"

	"github.com/nerrad567/atc-bridge/internal/api"
	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
	"github.com/nerrad567/atc-bridge/internal/bridges/ble/atcmi"
	"github.com/nerrad567/atc-bridge/internal/discovery"
	"github.com/nerrad567/atc-bridge/internal/health"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/database"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/atc-bridge/internal/metrics"
	"github.com/nerrad567/atc-bridge/internal/pipeline"
	"github.com/nerrad567/atc-bridge/internal/queue"
	"github.com/nerrad567/atc-bridge/internal/sightings"
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

// Run modes reported in health snapshots.
const (
	modeLog     = "log"
	modePublish = "publish"
)

// options holds the parsed command line.
type options struct {
	configPath  string
	bridgeID    string
	publish     *bool // nil unless -publish was given
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("atcbridge %s (%s, %s)\n", version, commit, date)
		return
	}

	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line arguments.
// The config path defaults to ATCBRIDGE_CONFIG, then configs/config.yaml.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("atcbridge", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fs.StringVar(&opts.bridgeID, "id", "", "override bridge.id from the configuration")
	publish := fs.Bool("publish", false, "override bridge.publish: publish to MQTT instead of logging only")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "publish" {
			opts.publish = publish
		}
	})
	return opts, nil
}

// applyFlags overrides configuration values given on the command line
// and re-validates the result.
func applyFlags(cfg *config.Config, opts options) error {
	if opts.bridgeID != "" {
		if cfg.MQTT.Broker.ClientID == cfg.Bridge.ID {
			cfg.MQTT.Broker.ClientID = opts.bridgeID
		}
		cfg.Bridge.ID = opts.bridgeID
	}
	if opts.publish != nil {
		cfg.Bridge.Publish = *opts.publish
	}
	return cfg.Validate()
}

// getConfigPath returns the configuration file path.
// Uses ATCBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ATCBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Parsed command line
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context, opts options) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting ATC bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyFlags(cfg, opts); err != nil {
		return fmt.Errorf("applying flags: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath, "devices", len(cfg.Devices))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // best-effort close of the log file
	log = log.With("bridge", cfg.Bridge.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	devices, err := ble.NewDeviceTable(deviceSpecs(cfg.Devices))
	if err != nil {
		return fmt.Errorf("building device table: %w", err)
	}

	// Open database for the sightings table (optional)
	var db *database.DB
	if cfg.Sightings.Enabled {
		db, err = database.Open(database.ConfigFrom(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)
	}

	records := queue.New[ble.Record]()
	defer records.Close()

	counters := metrics.New(records.Len)

	// Connect to MQTT broker (publish mode only)
	var mqttClient *mqtt.Client
	var sensors *discovery.Registry
	mode := modeLog
	if cfg.Bridge.Publish {
		mode = modePublish
		mqttClient, sensors, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	// Connect to InfluxDB (optional)
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
	}

	// Sightings recorder observes the producer
	observers := ble.Observers{counters}
	var recorder *sightings.Recorder
	if db != nil {
		recorder = sightings.NewRecorder(db.DB, devices, cfg.GetSightingsFlushInterval())
		recorder.SetLogger(log)
		if startErr := recorder.Start(ctx); startErr != nil {
			return fmt.Errorf("starting sightings recorder: %w", startErr)
		}
		defer recorder.Stop()
		observers = append(observers, recorder)
	}

	consumer, err := newConsumer(cfg, sensors, counters, log)
	if err != nil {
		return err
	}

	source := ble.NewBluetoothSource(cfg.Scanner.BufferSize, log)
	policy := ble.DecodeRestart
	if cfg.Bridge.DecodeFailurePolicy == config.DecodePolicySkip {
		policy = ble.DecodeSkip
	}

	pipe, err := pipeline.New(pipeline.Options{
		Queue: records,
		NewProducer: func() (pipeline.Runner, error) {
			p, newErr := ble.NewProducer(ble.ProducerOptions{
				Source:       source,
				Detector:     atcmi.New(),
				Decoder:      atcmi.New(),
				Devices:      devices,
				Sink:         records,
				Observer:     observers,
				Logger:       log,
				DecodePolicy: policy,
			})
			if newErr != nil {
				return nil, newErr
			}
			return p, nil
		},
		Consumer:     consumer,
		RestartDelay: cfg.GetRestartDelay(),
		Metrics:      counters,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	reporter := newReporter(cfg, mode, devices.Len(), pipe, counters, mqttClient, influxClient)
	reporter.SetLogger(log)
	reporter.Start(ctx)
	defer reporter.Stop()

	if cfg.API.Enabled {
		server, apiErr := startAPI(ctx, cfg, log, reporter, pipe, recorder, sensors, counters)
		if apiErr != nil {
			return apiErr
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, scanning",
		"mode", mode,
		"session_id", reporter.SessionID(),
		"devices", devices.Len(),
	)

	if err := pipe.Run(ctx); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	log.Info("shutdown signal received, cleaning up",
		"queued", records.Len(),
		"adverts_dropped", source.Dropped(),
	)

	// Deferred calls run in reverse order: API, health reporter (publishes
	// "stopping"), sightings (final flush), InfluxDB, MQTT (publishes
	// "offline"), queue, database, log file.
	log.Info("ATC bridge stopped")
	return nil
}

// deviceSpecs converts configured devices for the BLE device table.
func deviceSpecs(devices []config.DeviceConfig) []ble.DeviceSpec {
	specs := make([]ble.DeviceSpec, 0, len(devices))
	for _, d := range devices {
		specs = append(specs, ble.DeviceSpec{
			ID:      d.ID,
			Address: d.MACAddress,
			BindKey: d.BindKey,
			Keys:    d.Sensor.Keys(),
		})
	}
	return specs
}

// connectMQTT connects to the broker and starts the discovery registry.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, *discovery.Registry, error) {
	client, err := mqtt.Connect(cfg.MQTT, cfg.Bridge.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT session up", "subscriptions", len(client.Subscriptions()))
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	registry := discovery.NewRegistry(discovery.Config{
		Transport: client,
		Topics:    client.Topics(),
		QoS:       client.QoS(),
		Logger:    log,
	})
	if err := registry.Start(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("starting discovery: %w", err)
	}
	return client, registry, nil
}

// newConsumer selects the single active consumer for the run mode.
func newConsumer(cfg *config.Config, sensors *discovery.Registry, counters *metrics.Metrics, log *logging.Logger) (pipeline.Consumer, error) {
	if sensors == nil {
		return pipeline.NewLogConsumer(log), nil
	}

	publisher, err := pipeline.NewPublisher(pipeline.PublisherOptions{
		Devices:  cfg.Devices,
		Registry: sinkRegistry{registry: sensors},
		Metrics:  counters,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("building publisher: %w", err)
	}
	return publisher, nil
}

// newReporter builds the health reporter. Optional outputs are only set
// when present so the interfaces never hold typed nils.
func newReporter(cfg *config.Config, mode string, devices int, pipe *pipeline.Pipeline, counters *metrics.Metrics, mqttClient *mqtt.Client, influxClient *influxdb.Client) *health.Reporter {
	rc := health.ReporterConfig{
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		Mode:           mode,
		Interval:       cfg.GetHealthInterval(),
		QueueWarnDepth: cfg.Bridge.QueueWarnDepth,
		Devices:        devices,
		Tasks:          pipe,
		Counters:       counters,
	}
	if mqttClient != nil {
		rc.Publisher = mqttClient
		rc.Topic = mqttClient.Topics().BridgeHealth()
	}
	if influxClient != nil {
		rc.Stats = influxClient
	}
	return health.NewReporter(rc)
}

// startAPI builds and starts the status API.
func startAPI(ctx context.Context, cfg *config.Config, log *logging.Logger, reporter *health.Reporter, pipe *pipeline.Pipeline, recorder *sightings.Recorder, sensors *discovery.Registry, counters *metrics.Metrics) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Version: version,
		Devices: cfg.Devices,
		Health:  reporter,
		Tasks:   pipe,
		Metrics: counters.Handler(),
	}
	if recorder != nil {
		deps.Sightings = recorder
	}
	if sensors != nil {
		deps.Sensors = sensors
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return server, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check (may be nil if sightings are disabled)
//   - mqttClient: MQTT client to check (may be nil in log mode)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// sinkRegistry adapts the discovery registry to pipeline.SinkRegistry.
// The difference is the return type: *discovery.Sensor versus the
// pipeline.StateSink interface.
type sinkRegistry struct {
	registry *discovery.Registry
}

// Register implements pipeline.SinkRegistry.
func (a sinkRegistry) Register(device config.DeviceConfig, key string, sensor config.SensorConfig) (pipeline.StateSink, error) {
	s, err := a.registry.Register(device, key, sensor)
	if err != nil {
		return nil, err
	}
	return s, nil
}
