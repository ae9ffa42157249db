// Package app wires configuration, stores, the lifecycle engine, the
// reaper and the HTTP server into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthanhphan/gosdk/logger"

	"tmpshare/internal/blob"
	"tmpshare/internal/config"
	"tmpshare/internal/db"
	"tmpshare/internal/lifecycle"
	"tmpshare/internal/metadata"
	"tmpshare/internal/reaper"
	"tmpshare/internal/server"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg     config.Config
	engine  *lifecycle.Engine
	checks  []server.Check
	closers []func() error
}

// New opens the configured metadata and blob stores and builds the engine.
// Postgres migrations are applied before the pool is opened.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg}

	meta, err := a.openMetadata(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	blobs, err := a.openBlobs(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = lifecycle.New(meta, blobs, lifecycle.Options{ExpireAfter: cfg.ExpireAfter})
	return a, nil
}

// Engine returns the lifecycle engine.
func (a *App) Engine() *lifecycle.Engine { return a.engine }

func (a *App) openMetadata(ctx context.Context) (lifecycle.MetadataStore, error) {
	switch a.cfg.MetadataBackend {
	case config.BackendPostgres:
		if err := db.RunMigrations(a.cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		conn, err := db.Open(a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		store := metadata.NewPostgresStore(conn)
		a.checks = append(a.checks, server.Check{Name: "postgres", Pinger: store})
		return store, nil

	case config.BackendRedis:
		store, err := metadata.NewRedisStore(ctx, metadata.RedisConfig{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.checks = append(a.checks, server.Check{Name: "redis", Pinger: store})
		return store, nil

	case config.BackendMemory:
		logger.Warnw("metadata_in_memory", "service", "app", "msg", "records are lost on restart")
		store := metadata.NewMemoryStore()
		a.checks = append(a.checks, server.Check{Name: "memory", Pinger: store})
		return store, nil
	}
	return nil, fmt.Errorf("unknown metadata backend %q", a.cfg.MetadataBackend)
}

func (a *App) openBlobs(ctx context.Context) (lifecycle.BlobStore, error) {
	switch a.cfg.BlobBackend {
	case config.BlobFS:
		store, err := blob.NewFSStore(a.cfg.FilesDir)
		if err != nil {
			return nil, err
		}
		logger.Infow("blob_store_ready", "service", "app", "backend", "fs", "dir", store.Dir())
		return store, nil

	case config.BlobMinio:
		store, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  a.cfg.S3Endpoint,
			AccessKey: a.cfg.S3AccessKey,
			SecretKey: a.cfg.S3SecretKey,
			Bucket:    a.cfg.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		a.checks = append(a.checks, server.Check{Name: "minio", Pinger: store})
		logger.Infow("blob_store_ready", "service", "app", "backend", "minio", "bucket", a.cfg.Bucket)
		return blob.NewGuarded(store, blob.NewBreaker(5, 30*time.Second)), nil
	}
	return nil, fmt.Errorf("unknown blob backend %q", a.cfg.BlobBackend)
}

// Serve runs the HTTP server and, if enabled, the reaper until ctx is
// cancelled or the server fails.
func (a *App) Serve(ctx context.Context) error {
	home, err := server.LoadHomePage(a.cfg.HomePagePath)
	if err != nil {
		return fmt.Errorf("home page: %w", err)
	}

	srv := server.New(server.Config{
		Addr:           a.cfg.Addr,
		MaxUploadBytes: a.cfg.MaxUploadBytes,
		SweepOnRequest: a.cfg.SweepOnRequest,
		RateLimit:      a.cfg.RateLimit,
		TrustProxy:     a.cfg.TrustProxy,
		HomePage:       home,
		Checks:         a.checks,
	}, a.engine)

	var r *reaper.Reaper
	if a.cfg.EnableReaper {
		r = reaper.New(a.engine, a.cfg.CleanupInterval)
		r.Start(ctx)
		defer r.Stop()
	} else {
		logger.Infow("reaper_disabled", "service", "app")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting", "service", "app", "addr", a.cfg.Addr,
			"expire_seconds", int64(a.engine.ExpireAfter()/time.Second),
			"metadata", a.cfg.MetadataBackend, "blobs", a.cfg.BlobBackend)
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Infow("shutting_down", "service", "app")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Infow("shutdown_complete", "service", "app")
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		}
		return err
	}
}

// Close releases store connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnw("close_failed", "service", "app", "error", err.Error())
		}
	}
	a.closers = nil
}
