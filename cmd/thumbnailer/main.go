package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/api/handlers/thumbnail"
	"github.com/aliskhannn/thumbnailer/internal/api/router"
	"github.com/aliskhannn/thumbnailer/internal/api/server"
	"github.com/aliskhannn/thumbnailer/internal/bitmap"
	"github.com/aliskhannn/thumbnailer/internal/config"
	"github.com/aliskhannn/thumbnailer/internal/infra/kafka/consumer"
	"github.com/aliskhannn/thumbnailer/internal/infra/kafka/producer"
	thumbmsg "github.com/aliskhannn/thumbnailer/internal/kafka/handlers/thumbnail"
	thumbrepo "github.com/aliskhannn/thumbnailer/internal/repository/thumbnail"
	thumbsvc "github.com/aliskhannn/thumbnailer/internal/service/thumbnail"
	"github.com/aliskhannn/thumbnailer/internal/storage/file"
	"github.com/aliskhannn/thumbnailer/internal/storage/object"
	"github.com/aliskhannn/thumbnailer/internal/thumb"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Sources, outputs and the cache live below the base directory.
	files := file.NewOsStorage(filepath.Clean(cfg.Storage.BaseDir))

	var objects *object.Storage
	if m := cfg.Storage.Minio; m.Enabled {
		objects, err = object.NewStorage(ctx, m.Endpoint, m.AccessKey, m.SecretKey, m.BucketName, m.Prefix, m.UseSSL)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to object storage")
		}
	}

	background, err := bitmap.ParseHex(cfg.Thumb.Background)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid thumb.background")
	}

	repo := thumbrepo.NewRepository(db)
	p := producer.New(&cfg.Kafka, strategy)

	thumbOpts := thumb.Options{
		CacheDir:       cfg.Storage.CacheDir,
		Registry:       thumb.DefaultRegistry(),
		DefaultQuality: cfg.Thumb.DefaultQuality,
		MaxPixels:      cfg.Thumb.MaxPixels,
	}

	var service *thumbsvc.Service
	if objects != nil {
		service = thumbsvc.NewService(files, objects, p, repo, thumbOpts)
	} else {
		// objects must reach the service as an untyped nil when publishing is off.
		service = thumbsvc.NewService(files, nil, p, repo, thumbOpts)
	}

	taskHandler := thumbmsg.NewTaskHandler(service)
	handler := thumbnail.NewHandler(service, cfg.Thumb.CacheSeconds, background)

	c := consumer.New(&cfg.Kafka, strategy, taskHandler)

	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)

	r := router.Setup(handler)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("starting server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close master DB")
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Error().Err(err).Int("slave", i).Msg("failed to close slave DB")
		}
	}

	if err = p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	if err = c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
}
