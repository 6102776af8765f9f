package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OldStager01/packet-anomaly/api"
	"github.com/OldStager01/packet-anomaly/internal/auth"
	"github.com/OldStager01/packet-anomaly/internal/events"
	"github.com/OldStager01/packet-anomaly/internal/export"
	"github.com/OldStager01/packet-anomaly/internal/logger"
	"github.com/OldStager01/packet-anomaly/internal/metrics"
	"github.com/OldStager01/packet-anomaly/internal/orchestrator"
	"github.com/OldStager01/packet-anomaly/internal/parser"
	"github.com/OldStager01/packet-anomaly/pkg/config"
	"github.com/OldStager01/packet-anomaly/pkg/database"
	"github.com/OldStager01/packet-anomaly/pkg/database/queries"
	"github.com/OldStager01/packet-anomaly/pkg/validation"
)

// @title Packet Anomaly API
// @version 1.0
// @description Batch anomaly detection over packet capture logs using reconstruction-error scoring.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	serve := flag.Bool("serve", false, "start the HTTP API instead of a batch run")
	createUser := flag.String("create-user", "", "create an API user given as name:password and exit")
	output := flag.String("output", "", "CSV output path (overrides detector.output_path)")
	report := flag.String("report", "", "JSON report path (overrides detector.report_path)")
	percentile := flag.Float64("percentile", -1, "anomaly threshold percentile (overrides detector.percentile)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <log files, directories or globs...>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *output != "" {
		cfg.Detector.OutputPath = *output
	}
	if *report != "" {
		cfg.Detector.ReportPath = *report
	}
	if *percentile >= 0 {
		cfg.Detector.Percentile = *percentile
	}
	if *serve && cfg.App.Mode == "cli" {
		cfg.App.Mode = "production"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Debugf("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	var db *database.DB
	if cfg.Database.Enabled || *migrate || *createUser != "" {
		db, err = database.New(cfg.Database.ToDBConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		logger.Debug("Database connection established")
	}

	if *migrate {
		return runMigrations(cfg, db)
	}
	if *createUser != "" {
		return addUser(db, *createUser)
	}

	m := metrics.Get()

	var store events.Store
	if db != nil {
		store = database.NewRunStore(db)
	}

	orch, err := orchestrator.New(cfg, store, m)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	if err := orch.Start(); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer orch.Stop()

	if *serve {
		return serveAPI(cfg, db, orch, m)
	}
	return runBatch(cfg, orch, flag.Args())
}

func runBatch(cfg *config.Config, orch *orchestrator.Orchestrator, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("no input paths given")
	}

	paths, err := parser.Discover(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := orch.Execute(ctx, paths)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	exporter := export.NewDataExporter()
	if err := exporter.ExportCSV(report, cfg.Detector.OutputPath); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	if cfg.Detector.ReportPath != "" {
		if err := exporter.ExportJSON(report, cfg.Detector.ReportPath); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	fmt.Printf("Anomaly detection complete. Results saved to %s.\n", cfg.Detector.OutputPath)
	return nil
}

func serveAPI(cfg *config.Config, db *database.DB, orch *orchestrator.Orchestrator, m *metrics.Metrics) error {
	if cfg.Prometheus.Enabled && cfg.Prometheus.Port != cfg.API.Port {
		metrics.StartServer(cfg.Prometheus.Port)
	}

	server := api.NewServer(cfg, db, orch, m)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, db *database.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.MigrationTimeout)
	defer cancel()

	logger.Info("Running database migrations")
	if err := database.NewMigrator(db).Run(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Migrations completed successfully")
	return nil
}

func addUser(db *database.DB, credentials string) error {
	username, password, err := validation.ParseCredentials(credentials)
	if err != nil {
		return fmt.Errorf("invalid -create-user value: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := queries.NewUserRepository(db)
	exists, err := users.Exists(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists {
		return fmt.Errorf("user %q already exists", username)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user, err := users.Create(ctx, username, hash)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	logger.Infof("Created user %s (id %d)", user.Username, user.ID)
	return nil
}
