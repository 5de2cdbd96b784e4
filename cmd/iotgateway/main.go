package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"

	"github.com/CaioWing/iotgateway/internal/api"
	"github.com/CaioWing/iotgateway/internal/api/middleware"
	"github.com/CaioWing/iotgateway/internal/auth"
	"github.com/CaioWing/iotgateway/internal/config"
	"github.com/CaioWing/iotgateway/internal/mqtt"
	"github.com/CaioWing/iotgateway/internal/notify"
	"github.com/CaioWing/iotgateway/internal/repository/postgres"
	"github.com/CaioWing/iotgateway/internal/service"
	"github.com/CaioWing/iotgateway/internal/telemetry"
	"github.com/CaioWing/iotgateway/internal/telephony"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	var configPath string
	flagSet := pflag.NewFlagSet("iotgateway", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv("IOTGW_CONFIG"), "path to YAML config file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log = newLogger(cfg.Logging)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting iotgateway",
		"listen", cfg.ListenAddr(),
		"db_host", cfg.DB.Host,
		"mqtt", cfg.MQTT.Enabled,
		"influxdb", cfg.InfluxDB.Enabled,
	)

	// Run migrations
	log.Info("running database migrations")
	if err := postgres.RunMigrations(cfg.DB.DSN()); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations completed")

	// Database connection pool
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.ConnConfig.ConnectTimeout = cfg.DB.ConnectTimeout
	if cfg.DB.MaxConns > 0 {
		poolCfg.MaxConns = cfg.DB.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	log.Info("database connected")

	// Repositories
	deviceRepo := postgres.NewDeviceRepo(pool)
	ruleRepo := postgres.NewRuleRepo(pool)
	eventLogRepo := postgres.NewEventLogRepo(pool)

	// Dispatch observers
	metrics := middleware.NewMetrics()
	observers := service.Observers{metrics}
	if cfg.InfluxDB.Enabled {
		recorder, err := telemetry.Connect(ctx, cfg.InfluxDB, log)
		if err != nil {
			// Telemetry is best-effort.
			log.Warn("influxdb unavailable, dispatch telemetry disabled", "err", err)
		} else {
			defer recorder.Close()
			observers = append(observers, recorder)
			log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	// External collaborators
	originator := telephony.New(cfg.Telephony, log)
	notifier := notify.NewHTTPNotifier(cfg.Notify.Timeout, cfg.Notify.BodyLimit, log)
	log.Info("call origination backend selected", "backend", originator.Backend())

	// Services
	eventLogSvc := service.NewEventLogService(eventLogRepo, observers, log)
	iotDispatcher := service.NewIoTDispatcher(deviceRepo, ruleRepo, eventLogSvc, originator, cfg.Telephony.CallerID, log)
	callDispatcher := service.NewCallDispatcher(deviceRepo, eventLogSvc, notifier, log)
	deviceSvc := service.NewDeviceService(deviceRepo, log)
	ruleSvc := service.NewRuleService(ruleRepo, log)

	if cfg.Retention.MaxAge > 0 {
		retention := service.NewRetentionService(eventLogRepo, cfg.Retention.MaxAge, log)
		go retention.StartScheduler(ctx, cfg.Retention.Interval)
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer client.Close()

		ingress := mqtt.NewIngress(iotDispatcher, cfg.MQTT.TopicPrefix, cfg.Telephony.Timeout+10*time.Second, log)
		if err := ingress.Start(client, byte(cfg.MQTT.QoS)); err != nil {
			return fmt.Errorf("mqtt subscribe: %w", err)
		}
	}

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	admin, err := auth.NewAdmin(cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
	if err != nil {
		return err
	}

	// Router
	router := api.NewRouter(ctx, api.RouterDeps{
		IoTDispatcher:  iotDispatcher,
		CallDispatcher: callDispatcher,
		DeviceSvc:      deviceSvc,
		RuleSvc:        ruleSvc,
		EventLogSvc:    eventLogSvc,
		JWTManager:     jwtMgr,
		Admin:          admin,
		Metrics:        metrics,
		WebhookAPIKey:  cfg.Webhook.APIKey,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
		Logger:         log,
	})

	// HTTP Server
	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Telephony.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
