package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/OpenSourceIronman/BikeRADAR/internal/api"
	"github.com/OpenSourceIronman/BikeRADAR/internal/config"
	"github.com/OpenSourceIronman/BikeRADAR/internal/db"
	"github.com/OpenSourceIronman/BikeRADAR/internal/monitor"
	"github.com/OpenSourceIronman/BikeRADAR/internal/monitoring"
	"github.com/OpenSourceIronman/BikeRADAR/internal/pipeline"
	"github.com/OpenSourceIronman/BikeRADAR/internal/sensor"
	"github.com/OpenSourceIronman/BikeRADAR/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a radar JSON config (defaults built in when empty)")
	devMode     = flag.Bool("dev", false, "Replay a fixture instead of reading the serial port")
	fixturePath = flag.String("fixture", "testdata/scene.json", "Fixture replayed in dev mode")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	port        = flag.String("port", "", "Serial port to use (overrides config; ignored in dev mode)")
	dbPath      = flag.String("db", "", "SQLite database path (overrides config)")
	noDB        = flag.Bool("no-db", false, "Do not record cycles")
	debugLog    = flag.String("debug-log", "", "Write per-cycle diagnostics and traces to this file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// overrides are command-line values that replace config fields when set.
type overrides struct {
	listen string
	port   string
	db     string
}

// loadConfig reads path, or returns the built-in defaults when path is
// empty, then applies the overrides.
func loadConfig(path string, o overrides) (*config.RadarConfig, error) {
	cfg := config.Empty()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.listen != "" {
		cfg.Listen = &o.listen
	}
	if o.port != "" {
		cfg.SerialPort = &o.port
	}
	if o.db != "" {
		cfg.DBPath = &o.db
	}
	return cfg, nil
}

// openSource returns the fixture replay in dev mode and the serial port
// otherwise. The returned closer releases the source.
func openSource(cfg *config.RadarConfig, dev bool, fixture string) (sensor.Source, io.Closer, error) {
	if dev {
		src, err := sensor.LoadFixture(fixture)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("replaying %d fixture frames from %s", src.Len(), fixture)
		return src, io.NopCloser(nil), nil
	}

	opts := sensor.PortOptions{
		BaudRate:    cfg.GetSerialBaud(),
		ReadTimeout: cfg.GetSerialReadTimeout(),
	}
	src, err := sensor.OpenSerial(cfg.GetSerialPort(), opts, cfg.GetMaxRadius(), cfg.GetScanCommand())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open radar port %s: %w", cfg.GetSerialPort(), err)
	}
	log.Printf("reading frames from %s", cfg.GetSerialPort())
	return src, src, nil
}

// closeOnDone closes c once ctx is done, releasing a Scan blocked on the
// port so the cycle loop can observe the cancellation.
func closeOnDone(ctx context.Context, c io.Closer) {
	<-ctx.Done()
	if err := c.Close(); err != nil {
		log.Printf("failed to close radar source: %v", err)
	}
}

// newEngine builds the cycle engine described by cfg.
func newEngine(cfg *config.RadarConfig) (*pipeline.Engine, error) {
	params, err := cfg.MotionParams()
	if err != nil {
		return nil, err
	}
	return pipeline.NewEngine(pipeline.Options{
		MaxRadius: cfg.GetMaxRadius(),
		Params:    params,
		Mode:      cfg.GetClusterMode(),
	})
}

// newMux mounts the API, the debug charts and, when database is non-nil,
// the admin routes.
func newMux(engine *pipeline.Engine, database *db.DB, cfg *config.RadarConfig) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	monitor.NewCharts(engine).AttachRoutes(mux)
	api.NewServer(engine, database, cfg).AttachRoutes(mux)
	return mux, nil
}

// configureLogging sends failures to stderr and, when path is set, cycle
// diagnostics and traces to that file.
func configureLogging(path string) (io.Closer, error) {
	var (
		detail io.Writer
		closer io.Closer = io.NopCloser(nil)
	)
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open debug log: %w", err)
		}
		detail, closer = f, f
	}
	pipeline.SetLogWriters(os.Stderr, detail, detail)
	sensor.SetLogWriters(os.Stderr, detail, detail)
	return closer, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath, overrides{listen: *listen, port: *port, db: *dbPath})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.GetListen() == "" {
		log.Fatal("Listen address is required")
	}

	logCloser, err := configureLogging(*debugLog)
	if err != nil {
		log.Fatal(err)
	}
	defer logCloser.Close()

	eff := cfg.Effective()
	log.Printf("radar %s: max_radius=%d velocity=%.3f m/s poll_rate=%gHz heading=%g cluster=%s",
		version.String(), eff.MaxRadius, eff.VelocityMPS, eff.PollRate, eff.HeadingDeg, eff.ClusterMode)

	engine, err := newEngine(cfg)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	src, srcCloser, err := openSource(cfg, *devMode, *fixturePath)
	if err != nil {
		log.Fatal(err)
	}
	defer srcCloser.Close()

	var (
		database *db.DB
		sinks    []pipeline.Sink
	)
	if !*noDB {
		database, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		sinks = append(sinks, database)
	}

	mux, err := newMux(engine, database, cfg)
	if err != nil {
		log.Fatalf("failed to mount routes: %v", err)
	}

	// Create a wait group for the HTTP server and cycle loop routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx, src, sinks...); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("cycle loop failed: %v", err)
			stop()
		}
		log.Print("cycle loop terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		closeOnDone(ctx, srcCloser)
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:     cfg.GetListen(),
			Handler:  api.LoggingMiddleware(mux),
			ErrorLog: log.New(monitoring.NewWriter("[http] "), "", 0),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Print("graceful shutdown complete")
}
