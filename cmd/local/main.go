package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hatch-backend/cmd"
	"hatch-backend/internal/config"
	"hatch-backend/internal/database"

	"github.com/caarlos0/env/v11"
)

// LocalConfig holds the settings of the single user desktop build. The
// database lives under Root unless DATABASE_URL is set.
type LocalConfig struct {
	Root string `env:"ROOT" envDefault:"./hatch"`
}

func main() {
	cmd.LoadEnvFile()

	var local LocalConfig
	if err := env.Parse(&local); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(local.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(local.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	logOutput := io.MultiWriter(f, os.Stderr)
	log.SetOutput(logOutput)

	if _, ok := os.LookupEnv("DATABASE_URL"); !ok {
		os.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(local.Root, "db", "hatch.db"))
	}
	if _, ok := os.LookupEnv("API_PORT"); !ok {
		os.Setenv("API_PORT", "3001")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	cmd.ConfigureLogging(logOutput, cfg.SlogLevel())

	slog.Info("starting backend", "root", local.Root, "port", cfg.APIPort)

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	cmd.SeedInsuranceCatalog(db, cfg.InsuranceCatalogPath)
	registry := cmd.LoadModelRegistry(cfg.ModelRegistryPath)

	server := cmd.CreateServer(db, cfg, registry)

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	slog.Info("server stopped")
}
