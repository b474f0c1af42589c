package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go-etl-pipeline/internal/app"
	"go-etl-pipeline/internal/config"
	"go-etl-pipeline/pkg/utils"
)

// @title Users ETL Pipeline API
// @version 1.0
// @description Trigger daily users ETL runs and inspect their history.
// @host localhost:8080
// @BasePath /api/v1
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	utils.InitLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	a.CheckBucket(ctx)
	if err := a.Serve(ctx); err != nil {
		slog.Error("server stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
}
