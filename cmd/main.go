package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/halcyonweb/siteporter/internal/api/v1/handlers"
	"github.com/halcyonweb/siteporter/internal/app"
	"github.com/halcyonweb/siteporter/internal/db"
	"github.com/halcyonweb/siteporter/internal/db/repos"
	"github.com/halcyonweb/siteporter/internal/logger"
	"github.com/halcyonweb/siteporter/internal/services"
)

func main() {
	_ = godotenv.Load()
	logger.Initialize()

	database, err := db.New(db.Options{
		Host:     os.Getenv("DB_HOST"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		Port:     envInt("DB_PORT", 0),
	})
	if err != nil {
		logger.Fatal("failed to connect to database: ", err)
	}

	jobRepo := repos.NewJobRepository(database)
	checkpointRepo := repos.NewCheckpointRepository(database)
	logRepo := repos.NewJobLogRepository(database)

	dataDir := os.Getenv("SITEPORTER_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	registry, err := services.NewRegistry(
		services.NewSettingsPorter(database, dataDir),
	)
	if err != nil {
		logger.Fatal("failed to build porter registry: ", err)
	}

	scheduler := services.NewScheduler(database)
	controller := services.NewController(scheduler, jobRepo, checkpointRepo, logRepo, registry)
	dispatcher := services.NewDispatcher(jobRepo, controller, 0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go dispatcher.Start(ctx)

	server := app.New(handlers.NewJobHandler(controller))

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown()
	}()
	if err := server.Listen(addr); err != nil {
		logger.Fatal("server stopped: ", err)
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warnf("invalid %s value %q, using default", key, raw)
		return fallback
	}
	return value
}
