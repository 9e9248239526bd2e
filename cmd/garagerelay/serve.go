package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/garage-relay/internal/actuator"
	"github.com/nerrad567/garage-relay/internal/api"
	"github.com/nerrad567/garage-relay/internal/audit"
	"github.com/nerrad567/garage-relay/internal/events"
	"github.com/nerrad567/garage-relay/internal/infrastructure/config"
	"github.com/nerrad567/garage-relay/internal/infrastructure/database"
	"github.com/nerrad567/garage-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/garage-relay/internal/infrastructure/logging"
	"github.com/nerrad567/garage-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/garage-relay/internal/infrastructure/tracing"
	"github.com/nerrad567/garage-relay/internal/metrics"
	"github.com/nerrad567/garage-relay/internal/user"
)

// shutdownTimeout bounds the tracing flush on exit.
const shutdownTimeout = 5 * time.Second

// run starts the relay and blocks until ctx is cancelled.
//
// Startup order: config, logger, tracing, database, actuator, optional MQTT
// and InfluxDB, event bus, API server. Any failure before the server starts
// is fatal; deferred cleanups run in reverse.
func run(ctx context.Context, configPath string) error { //nolint:funlen // linear startup sequence
	log := logging.Default()
	log.Info("starting garage relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log.Info("configuration loaded",
		"path", configPath,
		"driver", cfg.GPIO.Driver,
		"pin", cfg.GPIO.Pin,
		"hold_ms", cfg.GPIO.HoldMS,
	)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := shutdownTracing(flushCtx); shutdownErr != nil {
			log.Error("error flushing traces", "error", shutdownErr)
		}
	}()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", db.Path())

	act, err := startActuator(cfg.GPIO, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("releasing relay line")
		if closeErr := act.Close(); closeErr != nil {
			log.Error("error releasing relay line", "error", closeErr)
		}
	}()

	users := user.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	m := metrics.New()

	// Sink clients are closed only after the bus has drained, so events
	// queued by the last requests still reach them.
	bus := events.NewBus(log)
	var sinkClosers []func()
	defer func() { drainThenClose(bus, sinkClosers) }()
	bus.Add(m)
	bus.Add(events.NewAuditSink(auditRepo))

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		sinkClosers = append(sinkClosers, func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		})
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		bus.Add(events.NewMQTTSink(mqttClient))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic_prefix", mqttClient.Topics().Prefix(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		sinkClosers = append(sinkClosers, func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		bus.Add(events.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log, m)
	go hub.Run(ctx)
	bus.Add(hub)

	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log,
		Actuator:  act,
		Users:     users,
		Events:    bus,
		AuditRepo: auditRepo,
		DB:        db,
		Metrics:   m,
		Hub:       hub,
		Version:   version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
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

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"sinks", bus.Sinks(),
		"require_registered_key", cfg.Security.RequireRegisteredKey,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// drainThenClose waits for queued events to reach every sink, then closes
// the sink clients in registration order.
func drainThenClose(bus *events.Bus, closers []func()) {
	bus.Close()
	for _, closeFn := range closers {
		closeFn()
	}
}

// startActuator builds the configured driver and, unless disabled, claims
// the relay line so a missing GPIO device fails startup instead of the
// first toggle.
func startActuator(cfg config.GPIOConfig, log *logging.Logger) (actuator.Actuator, error) {
	act, err := actuator.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating actuator: %w", err)
	}

	if cfg.AcquireAtStartup {
		if err := act.Acquire(); err != nil {
			return nil, fmt.Errorf("acquiring relay line: %w", err)
		}
	}

	plan := act.Plan()
	log.Info("actuator ready",
		"driver", act.Name(),
		"pin", plan.Pin,
		"active", plan.Active.String(),
		"hold", plan.Hold.String(),
		"restore", plan.Restore,
	)
	return act, nil
}

// healthCheck verifies the enabled infrastructure connections.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
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
