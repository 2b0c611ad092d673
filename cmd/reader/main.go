package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kestrel/reader/internal/config"
	"kestrel/reader/internal/database"
	"kestrel/reader/internal/ingest"
	importfeeds "kestrel/reader/internal/import"
	"kestrel/reader/internal/server"
	"kestrel/reader/internal/storage"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func main() {
	cfg := config.DefaultConfig()

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importCmd.StringVar(&cfg.OPMLPath, "opml", config.GetEnvString("READER_OPML_PATH", config.DefaultOPMLPath),
		"Path to the OPML subscriptions file (env: READER_OPML_PATH)")
	importCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("READER_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: READER_DB_PATH)")

	var logLevelStr string
	importCmd.StringVar(&logLevelStr, "log-level", config.GetEnvString("READER_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: READER_LOG_LEVEL)")

	startCmd := flag.NewFlagSet("start", flag.ExitOnError)
	startCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("READER_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: READER_DB_PATH)")

	var startLogLevelStr string
	startCmd.StringVar(&startLogLevelStr, "log-level", config.GetEnvString("READER_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: READER_LOG_LEVEL)")

	var intervalMinutes int
	startCmd.IntVar(&intervalMinutes, "interval", config.GetEnvInt("READER_INTERVAL", config.DefaultInterval),
		"Interval in minutes between fetch runs, 0 for one-shot mode (env: READER_INTERVAL)")

	startCmd.IntVar(&cfg.WorkerCount, "workers", config.GetEnvInt("READER_WORKER_COUNT", config.DefaultWorkerCount),
		"Number of worker goroutines for fetching, 0 for CPU count (env: READER_WORKER_COUNT)")

	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	serverCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("READER_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: READER_DB_PATH)")

	serverCmd.StringVar(&cfg.ServerHost, "host", config.GetEnvString("READER_HOST", config.DefaultServerHost),
		"Host to bind the server to (env: READER_HOST)")

	serverCmd.IntVar(&cfg.ServerPort, "port", config.GetEnvInt("READER_PORT", config.DefaultServerPort),
		"Port to listen on (env: READER_PORT)")

	var serverLogLevelStr string
	serverCmd.StringVar(&serverLogLevelStr, "log-level", config.GetEnvString("READER_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: READER_LOG_LEVEL)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		importCmd.Parse(os.Args[2:])

		if level, err := zerolog.ParseLevel(logLevelStr); err == nil {
			cfg.LogLevel = level
		}
		zerolog.SetGlobalLevel(cfg.LogLevel)

		if err := runImport(cfg); err != nil {
			log.Error().Err(err).Msg("Import failed")
			os.Exit(1)
		}

	case "start":
		startCmd.Parse(os.Args[2:])

		if level, err := zerolog.ParseLevel(startLogLevelStr); err == nil {
			cfg.LogLevel = level
		}
		cfg.Interval = time.Duration(intervalMinutes) * time.Minute
		zerolog.SetGlobalLevel(cfg.LogLevel)

		if err := runStart(cfg); err != nil {
			log.Error().Err(err).Msg("Fetching failed")
			os.Exit(1)
		}

	case "server":
		serverCmd.Parse(os.Args[2:])

		if level, err := zerolog.ParseLevel(serverLogLevelStr); err == nil {
			cfg.LogLevel = level
		}
		zerolog.SetGlobalLevel(cfg.LogLevel)

		if err := runServer(cfg); err != nil {
			log.Error().Err(err).Msg("Server failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		printUsage()
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: reader [command] [options]")
	fmt.Println("Commands: import, start, server")
	fmt.Println("\nFor command-specific options, use: reader [command] -h")
}

// runImport loads subscriptions from an OPML file into the database.
func runImport(cfg *config.Config) error {
	dbCfg := database.NewConfig(cfg.DBPath)
	db, err := database.NewDB(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	importer := importfeeds.NewImporter(storage.NewRepository(db))
	return importer.ImportFeeds(context.Background(), cfg.OPMLPath)
}

// runStart executes the feed fetcher either once or periodically based on configuration.
func runStart(cfg *config.Config) error {
	if cfg.Interval <= 0 {
		log.Info().Msg("Running in one-shot mode")
	} else {
		log.Info().Int64("interval_minutes", int64(cfg.Interval.Minutes())).Msg("Running in periodic mode")
	}

	dbCfg := database.NewConfig(cfg.DBPath)
	db, err := database.NewDB(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	if err := runFetchCycle(ctx, db, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Fetch cycle canceled by shutdown signal")
			return nil
		}
		return err
	}

	if cfg.Interval <= 0 {
		log.Info().Msg("One-shot fetch completed, exiting")
		return nil
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", cfg.Interval).
		Time("next_run", time.Now().Add(cfg.Interval)).
		Msg("Waiting for next fetch cycle")

	for {
		select {
		case <-ticker.C:
			log.Info().Msg("Starting scheduled fetch cycle")

			if err := runFetchCycle(ctx, db, cfg); err != nil {
				if errors.Is(err, context.Canceled) {
					log.Info().Msg("Fetch cycle canceled by shutdown signal")
					return nil
				}
				log.Error().Err(err).Msg("Fetch cycle failed")
				// Continue to the next cycle rather than exiting
			}

			log.Info().
				Time("next_run", time.Now().Add(cfg.Interval)).
				Msg("Waiting for next fetch cycle")

		case <-ctx.Done():
			log.Info().Msg("Shutting down periodic fetching")
			return nil
		}
	}
}

// runFetchCycle executes a single feed fetch cycle.
func runFetchCycle(ctx context.Context, db *database.DB, cfg *config.Config) error {
	processor, err := ingest.NewFeedProcessor(storage.NewRepository(db), cfg.WorkerCount)
	if err != nil {
		return fmt.Errorf("failed to initialize feed processor: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	log.Info().
		Int("worker_count", processor.WorkerCount).
		Msg("Starting fetch cycle")

	startTime := time.Now()
	err = processor.ProcessFeeds(fetchCtx)
	endTime := time.Now()

	log.Info().
		Dur("duration", endTime.Sub(startTime)).
		Msg("Fetch cycle finished")

	if err != nil {
		if ctxErr := fetchCtx.Err(); ctxErr != nil && (errors.Is(err, ctxErr) || err.Error() == ctxErr.Error()) {
			return ctx.Err()
		}
		return fmt.Errorf("fetch error: %w", err)
	}

	processed, duplicates := processor.Stats()
	log.Info().
		Int64("new_entries", processed).
		Int64("duplicates", duplicates).
		Msg("Fetch stats")

	return nil
}

// runServer starts the HTTP API server with the provided configuration.
func runServer(cfg *config.Config) error {
	dbCfg := database.NewConfig(cfg.DBPath)

	db, err := database.NewDB(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return server.RunServer(db, cfg.ListenAddr(), log.Logger, cfg.FeverUsername, cfg.AdminPasswordHash)
}
