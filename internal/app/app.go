// Package app wires configuration into a ready pipeline: stores, notifier,
// lock, controller and scheduler. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"go-etl-pipeline/internal/api"
	"go-etl-pipeline/internal/api/handler"
	"go-etl-pipeline/internal/config"
	"go-etl-pipeline/internal/lock"
	"go-etl-pipeline/internal/notify"
	"go-etl-pipeline/internal/objectstore"
	"go-etl-pipeline/internal/pipeline"
	"go-etl-pipeline/internal/scheduler"
	"go-etl-pipeline/internal/store"
	"go-etl-pipeline/internal/warehouse"
	"go-etl-pipeline/pkg/router"
	"go-etl-pipeline/pkg/utils"
)

const checkTimeout = 10 * time.Second

type App struct {
	Config     *config.Config
	Controller *pipeline.Controller
	Scheduler  *scheduler.Scheduler
	History    *store.DB

	objects *objectstore.MinIO
	closers []func() error
}

// New opens every collaborator named by cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.History, err = store.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("app: open history: %w", err)
	}
	a.closers = append(a.closers, a.History.Close)

	wh, err := warehouse.Open(ctx, cfg.Warehouse.Driver, cfg.Warehouse.DSN)
	if err != nil {
		return nil, fmt.Errorf("app: open warehouse: %w", err)
	}
	a.closers = append(a.closers, wh.Close)

	a.objects, err = objectstore.NewMinIO(objectstore.Options{
		Endpoint:  cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		UseSSL:    cfg.ObjectStore.UseSSL,
		Region:    cfg.ObjectStore.Region,
	})
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		return nil, err
	}

	locker := lock.Locker(lock.NewLocal())
	if cfg.Lock.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr, Password: cfg.Lock.Password})
		a.closers = append(a.closers, client.Close)
		locker = lock.NewRedis(client, cfg.Lock.Key, cfg.Lock.TTL)
	}

	spool := utils.NewOutputManager(cfg.Pipeline.SpoolDir)
	stages := &pipeline.Stages{
		Source:    pipeline.NewSourceClient(&http.Client{Timeout: cfg.Source.Timeout}, cfg.Source.URL),
		Store:     a.objects,
		Warehouse: wh,
		Spool:     spool,
		Bucket:    cfg.ObjectStore.Bucket,
	}
	graph, err := stages.Graph(cfg.RetryPolicy())
	if err != nil {
		return nil, err
	}

	a.Controller = pipeline.NewController(cfg.Pipeline.Name, graph, notifier,
		pipeline.WithHistory(a.History),
		pipeline.WithLocker(locker),
		pipeline.WithSpool(spool),
	)
	a.Scheduler = scheduler.New(a.Controller, cfg.StartDate())
	return a, nil
}

func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	image, err := notify.LoadImage(cfg.Notifier.ImagePath)
	if err != nil {
		return nil, err
	}
	switch cfg.Notifier.Kind {
	case config.NotifierTelegram:
		t := cfg.Notifier.Telegram
		return notify.NewTelegram(&http.Client{Timeout: 30 * time.Second}, t.APIURL, t.BotToken, t.ChatID, image), nil
	case config.NotifierAMQP:
		return notify.NewAMQP(cfg.Notifier.AMQP.URL, cfg.Notifier.AMQP.Queue, image), nil
	case config.NotifierLog:
		return notify.Log{}, nil
	default:
		return nil, fmt.Errorf("app: unknown notifier %q", cfg.Notifier.Kind)
	}
}

// CheckBucket warns early when the staging bucket is absent. Runs would fail
// on it anyway; this only surfaces the problem at startup.
func (a *App) CheckBucket(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := a.objects.CheckBucket(ctx, a.Config.ObjectStore.Bucket); err != nil {
		slog.WarnContext(ctx, "staging bucket unavailable", "bucket", a.Config.ObjectStore.Bucket, "error", err)
	}
}

// Serve exposes the HTTP API until ctx ends, then waits for runs it started.
func (a *App) Serve(ctx context.Context) error {
	var opts []router.Option
	if a.Config.HTTP.ColorLogs {
		opts = append(opts, router.WithColor())
	}
	r := router.New(opts...)
	h := handler.NewHandler(ctx, a.Controller, a.History)
	api.RegisterRoutes(r, h)

	err := r.Start(ctx, a.Config.HTTP.Addr)
	h.Wait()
	return err
}

// Close releases collaborators in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
