// fatigued: fatigue monitoring service
// Accepts per-frame measurements over WebSocket and REST, classifies them
// per subject and fans results out to the dashboard, MQTT, spray and Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/teslashibe/go-fatigue/internal/config"
	"github.com/teslashibe/go-fatigue/internal/log"
	"github.com/teslashibe/go-fatigue/pkg/facepose"
	"github.com/teslashibe/go-fatigue/pkg/facepose/yunet"
	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/monitor"
	"github.com/teslashibe/go-fatigue/pkg/spray"
	"github.com/teslashibe/go-fatigue/pkg/store"
	"github.com/teslashibe/go-fatigue/pkg/telemetry"
	"github.com/teslashibe/go-fatigue/pkg/web"
)

var (
	version     = "1.0.0"
	debug       = flag.Bool("debug", false, "Enable debug logging and per-frame traces")
	idleTimeout = flag.Duration("idle-timeout", 5*time.Minute, "Close sessions idle for this long (0 keeps them)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)

	fmt.Println()
	fmt.Println("😴 go-fatigue v" + version)
	fmt.Println("   Driver fatigue monitoring service")
	fmt.Println()

	thresholds, err := loadThresholds(cfg)
	if err != nil {
		log.Error("invalid thresholds", "error", err)
		os.Exit(1)
	}

	opts := monitor.Options{
		Config:      thresholds,
		IdleTimeout: *idleTimeout,
	}
	if *debug {
		opts.Tracer = func(subjectID string, tr fatigue.Trace) {
			log.Debug("frame",
				"subject", subjectID,
				"frame", tr.Frame,
				"decided", tr.Decided,
				"level", tr.Result.Level,
				"indicators", tr.Indicators,
				"smoothed", tr.Smoothed,
			)
		}
	}

	// Optional head pose from camera frames
	var estimator *facepose.Estimator
	if cfg.YuNetModelPath != "" {
		dcfg := facepose.DefaultConfig()
		dcfg.ModelPath = cfg.YuNetModelPath
		detector, err := yunet.New(dcfg)
		if err != nil {
			log.Error("face detector unavailable", "error", err)
			os.Exit(1)
		}
		estimator = facepose.NewEstimator(detector, facepose.DefaultPoseModel())
		opts.Pose = estimator
		log.Info("image frames enabled", "model", cfg.YuNetModelPath)
	}

	hub, err := monitor.NewHub(opts)
	if err != nil {
		log.Error("failed to create hub", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "fatigued",
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024, // Image frames
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if *debug {
		app.Use(logger.New())
	}

	api := app.Group("/api")

	// Dashboard
	dashboard := web.NewServer()
	dashboard.RegisterRoutes(app)
	dashboard.Start()
	mustAddSink(hub, dashboard)

	// MQTT telemetry, shared with the spray actuator when SPRAY_MODE=mqtt
	var emitter *telemetry.MQTTEmitter
	if cfg.MQTTBroker != "" {
		emitter = telemetry.NewMQTTEmitter(telemetry.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
		})
		if err := emitter.Connect(ctx); err != nil {
			log.Error("mqtt connect failed", "broker", cfg.MQTTBroker, "error", err)
			os.Exit(1)
		}
		mustAddSink(hub, telemetry.NewResultSink(emitter, cfg.MQTTTopicPrefix))
	}

	// Spray
	actuator, err := newActuator(cfg, emitter)
	if err != nil {
		log.Error("spray actuator", "error", err)
		os.Exit(1)
	}
	dispatcher := spray.NewDispatcher(actuator, cfg.SprayCooldown)
	mustAddSink(hub, dispatcher)

	// Detection history
	var db *store.Store
	if cfg.DatabaseURL != "" {
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("database unavailable", "url", cfg.DatabaseURLForLog(), "error", err)
			os.Exit(1)
		}
		recorder := store.NewRecorder(db, cfg.SampleEvery)
		recorder.RegisterAPIRoutes(api)
		mustAddSink(hub, recorder)
		log.Info("history enabled", "url", cfg.DatabaseURLForLog(), "sample_every", cfg.SampleEvery)
	}

	// Upstream fleet service
	var uplink *telemetry.Uplink
	if cfg.UplinkURL != "" {
		uplink = telemetry.NewUplink(cfg.UplinkURL)
		go uplink.Run(ctx)
		mustAddSink(hub, uplink)
	}

	// Register WebSocket and API routes
	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(api)

	api.Get("/spray", func(c *fiber.Ctx) error {
		return c.JSON(dispatcher.Stats())
	})

	// Health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":   "ok",
			"version":  version,
			"sessions": hub.SessionCount(),
		}
		if emitter != nil {
			health["mqtt"] = emitter.IsConnected()
		}
		if uplink != nil {
			health["uplink"] = uplink.IsConnected()
		}
		return c.JSON(health)
	})

	// Metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		stats := hub.Stats()
		sprays := dispatcher.Stats()
		return c.SendString(fmt.Sprintf(`# HELP fatigue_sessions Open monitoring sessions
# TYPE fatigue_sessions gauge
fatigue_sessions %d

# HELP fatigue_frames_processed Total frames classified
# TYPE fatigue_frames_processed counter
fatigue_frames_processed %d

# HELP fatigue_rejected Total frames rejected
# TYPE fatigue_rejected counter
fatigue_rejected %d

# HELP fatigue_spray_triggers Total frames that asked for a spray
# TYPE fatigue_spray_triggers counter
fatigue_spray_triggers %d

# HELP fatigue_spray_fired Total sprays fired
# TYPE fatigue_spray_fired counter
fatigue_spray_fired %d

# HELP fatigue_spray_suppressed Total sprays suppressed by cooldown
# TYPE fatigue_spray_suppressed counter
fatigue_spray_suppressed %d
`, stats.Sessions, stats.FramesProcessed, stats.Rejected, stats.SprayTriggers, sprays.Fired, sprays.Suppressed))
	})

	go hub.Run(ctx)

	// Start server
	go func() {
		addr := cfg.Addr()
		log.Info("starting server", "addr", addr, "preset", cfg.Preset, "spray", actuator.Name())
		log.Info("endpoints",
			"websocket", "/ws/subject/:id",
			"api", "/api/subjects",
			"dashboard", "/dashboard/api/status",
			"health", "/health",
		)
		if err := app.Listen(addr); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	// Closing sessions last lets every sink see the session end
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warn("hub shutdown", "error", err)
	}
	cancel()
	dashboard.Shutdown()
	if emitter != nil {
		emitter.Disconnect()
	}
	if db != nil {
		db.Close()
	}
	if estimator != nil {
		estimator.Close()
	}

	log.Info("goodbye")
}

// loadThresholds reads FATIGUE_THRESHOLDS_FILE if set, else the named preset
func loadThresholds(cfg *config.Service) (fatigue.Config, error) {
	if cfg.ThresholdsFile != "" {
		return fatigue.LoadConfig(cfg.ThresholdsFile)
	}
	return fatigue.Preset(cfg.Preset)
}

func newActuator(cfg *config.Service, emitter *telemetry.MQTTEmitter) (spray.Actuator, error) {
	switch cfg.SprayMode {
	case config.SprayHTTP:
		return spray.NewHTTPActuator(cfg.SprayGatewayURL), nil
	case config.SprayMQTT:
		if emitter == nil {
			return nil, spray.ErrNoPublisher
		}
		return spray.NewMQTTActuator(emitter, cfg.MQTTTopicPrefix), nil
	default:
		return &spray.LogActuator{Logger: log.Component("spray")}, nil
	}
}

func mustAddSink(hub *monitor.Hub, s monitor.Sink) {
	if err := hub.AddSink(s); err != nil {
		log.Error("failed to register sink", "sink", s.Name(), "error", err)
		os.Exit(1)
	}
}
