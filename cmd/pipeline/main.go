package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-etl-pipeline/internal/app"
	"go-etl-pipeline/internal/config"
	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/internal/scheduler"
	"go-etl-pipeline/pkg/utils"
)

var (
	configPath    string
	runDate       string
	withScheduler bool

	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:           "pipeline",
		Short:         "Daily users ETL: source API to object store to warehouse and back",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			utils.InitLogger(cfg.Log.Level)
			return nil
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run every stage once for one logical date (default: yesterday, UTC)",
		RunE:  runOnce,
	}

	scheduleCmd = &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline every day at midnight UTC for the previous day",
		RunE:  runSchedule,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API for triggering and inspecting runs",
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (env "+config.EnvConfigPath+")")
	runCmd.Flags().StringVar(&runDate, "date", "", "logical date, YYYY-MM-DD")
	serveCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also run the daily schedule")

	rootCmd.AddCommand(runCmd, scheduleCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	date := scheduler.LogicalDateFor(time.Now())
	if runDate != "" {
		var err error
		if date, err = model.ParseLogicalDate(runDate); err != nil {
			return err
		}
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, runErr := a.Controller.Run(ctx, date)
	if res != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("run for %s: %w", date, runErr)
	}
	return nil
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.CheckBucket(ctx)
	slog.InfoContext(ctx, "next activation", "at", scheduler.Next(time.Now()))
	return a.Scheduler.Start(ctx)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.CheckBucket(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Serve(ctx) })
	if withScheduler {
		g.Go(func() error { return a.Scheduler.Start(ctx) })
	}
	return g.Wait()
}
